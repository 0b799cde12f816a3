package inventory

// DefaultTemplate seeds a fresh database with the standard branch
// catalog. Quantities are counted per item as raw stock and prepared
// semi-finished stock.
func DefaultTemplate() []TemplateCategory {
	return []TemplateCategory{
		{
			Name: "Мясо",
			Items: []TemplateItem{
				{Name: "Курица", Unit: "кг"},
				{Name: "Говядина", Unit: "кг"},
				{Name: "Бекон", Unit: "кг"},
			},
		},
		{
			Name: "Овощи",
			Items: []TemplateItem{
				{Name: "Томаты", Unit: "кг"},
				{Name: "Огурцы", Unit: "кг"},
				{Name: "Капуста", Unit: "кг"},
				{Name: "Лук", Unit: "кг"},
				{Name: "Картофель", Unit: "кг"},
			},
		},
		{
			Name: "Соусы",
			Items: []TemplateItem{
				{Name: "Чесночный", Unit: "л"},
				{Name: "Острый", Unit: "л"},
				{Name: "Сырный", Unit: "л"},
			},
		},
		{
			Name: "Упаковка",
			Items: []TemplateItem{
				{Name: "Лаваш", Unit: "шт"},
				{Name: "Коробки", Unit: "шт"},
				{Name: "Стаканы", Unit: "шт"},
			},
		},
	}
}
