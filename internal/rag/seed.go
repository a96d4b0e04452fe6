package rag

// seedDocuments is a minimal built-in corpus used when no external corpus
// is configured. It covers the procedural questions users ask most.
var seedDocuments = []Document{
	{
		Title:     "Оформление загранпаспорта",
		Content:   "Загранпаспорт оформляется через портал Госуслуг или в любом МФЦ. Понадобятся: паспорт РФ, заявление, фотографии 35x45 мм и квитанция об оплате госпошлины. Срок оформления по месту жительства до одного месяца.",
		SourceURL: "https://www.gosuslugi.ru/passportzagran",
	},
	{
		Title:     "Запись ребёнка в детский сад",
		Content:   "Заявление на запись в детский сад подаётся через портал Госуслуг или в МФЦ. Нужны свидетельство о рождении ребёнка, паспорт родителя и документ о регистрации ребёнка по месту жительства. Зачисление идёт по очереди с учётом льгот.",
		SourceURL: "https://www.gosuslugi.ru/10909",
	},
	{
		Title:     "Регистрация по месту жительства",
		Content:   "Постоянная регистрация оформляется в МФЦ или через Госуслуги. Понадобятся паспорт и документ, подтверждающий право пользования жилым помещением. Услуга бесплатная, срок до 8 рабочих дней.",
		SourceURL: "https://www.gosuslugi.ru/310570",
	},
	{
		Title:     "Замена паспорта РФ",
		Content:   "Паспорт меняют в 20 и 45 лет, при смене фамилии, порче или утере. Заявление подаётся через Госуслуги или МФЦ. Госпошлина 300 рублей, при порче или утере 1500 рублей.",
		SourceURL: "https://www.gosuslugi.ru/passportrf",
	},
	{
		Title:     "Льготы на проезд для пенсионеров",
		Content:   "Пенсионеры Санкт-Петербурга могут оформить льготную транспортную карту в МФЦ. Нужны паспорт и пенсионное удостоверение либо справка из СФР.",
	},
}

// SeedDefault fills an index with the built-in corpus.
func SeedDefault(i *Index) error {
	for _, doc := range seedDocuments {
		if err := i.Add(doc); err != nil {
			return err
		}
	}
	return nil
}
