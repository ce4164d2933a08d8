package form

import "fmt"

const (
	FlowNameChoice   = "name_choice"
	FlowCourseAccess = "course_access"
)

// ByName returns one of the built-in flows.
func ByName(name, siteURL string) (Flow, error) {
	switch name {
	case FlowNameChoice, "":
		return NameChoice(siteURL), nil
	case FlowCourseAccess:
		return CourseAccess(siteURL), nil
	default:
		return Flow{}, fmt.Errorf("unknown form flow %q", name)
	}
}

func consentOptions() []Option {
	return []Option{
		{Token: "consent_yes", Label: "Согласен", Value: "yes"},
		{Token: "consent_no", Label: "Не согласен", Value: "no", Declines: true},
	}
}

// NameChoice asks about the child's name preferences before granting access
// to the course. Popularity is stored as the lead topic and the free-text
// criterion as its details.
func NameChoice(siteURL string) Flow {
	return Flow{
		Name: FlowNameChoice,
		Greeting: "Приветствуем вас в боте платформы «имяребенка.рф».\n" +
			"Чтобы получить доступ к курсу «Как выбрать имя ребёнку?», ответьте, пожалуйста, на несколько вопросов.",
		Steps: []Step{
			{
				Key:   "consent",
				Field: FieldConsent,
				Prompt: "Подтвердите, пожалуйста, согласие на обработку введённых данных (ответы и адрес электронной почты). " +
					"Данные используются исключительно для предоставления доступа к материалам.",
				Options: consentOptions(),
			},
			{
				Key:    "gender",
				Field:  FieldGender,
				Prompt: "Укажите пол ребёнка.",
				Options: []Option{
					{Token: "gender_male", Label: "Мужской", Value: "male"},
					{Token: "gender_female", Label: "Женский", Value: "female"},
					{Token: "gender_any", Label: "Любой", Value: "any"},
				},
			},
			{
				Key:    "popularity",
				Field:  FieldTopic,
				Prompt: "Какую распространённость имени вы рассматриваете?",
				Options: []Option{
					{Token: "pop_rare", Label: "Редкое", Value: "rare"},
					{Token: "pop_popular", Label: "Популярное", Value: "popular"},
				},
			},
			{
				Key:      "criterion",
				Field:    FieldDetails,
				Prompt:   "Напишите одним-двумя предложениями, что для вас является главным критерием при выборе имени.",
				Validate: RequireText("Пожалуйста, кратко опишите ваш главный критерий."),
			},
			{
				Key:      "email",
				Field:    FieldEmail,
				Prompt:   "Укажите адрес электронной почты. На него мы отправим ссылку на онлайн-курс и инструкции по доступу.",
				Validate: Email("Похоже, в адресе есть ошибка. Пожалуйста, укажите почту в формате name@example.ru."),
			},
		},
		SiteLink: &Link{Label: "Перейти на сайт", URL: siteURL},
		Declined: "Хорошо. Вы можете перейти на сайт по кнопке ниже.",
		Success: func(int64) string {
			return "Спасибо! Мы отправили инструкцию по доступу на указанную почту. " +
				"Чтобы перейти к материалам прямо сейчас, нажмите на кнопку ниже."
		},
		SuccessLink: &Link{Label: "Перейти на страницу курса", URL: siteURL},
	}
}

// CourseAccess collects full name, email and the expected child.
func CourseAccess(siteURL string) Flow {
	return Flow{
		Name:     FlowCourseAccess,
		Greeting: "Оформление доступа к курсу.",
		Steps: []Step{
			{
				Key:     "consent",
				Field:   FieldConsent,
				Prompt:  "Подтверди согласие на обработку персональных данных.",
				Options: consentOptions(),
			},
			{
				Key:      "fio",
				Field:    FieldFIO,
				Prompt:   "Напиши ФИО полностью:",
				Validate: RequireText("ФИО не может быть пустым. Напиши ФИО полностью:"),
			},
			{
				Key:      "email",
				Field:    FieldEmail,
				Prompt:   "Укажи e-mail:",
				Validate: Email("Похоже, в адресе есть ошибка. Укажи e-mail в формате name@example.ru:"),
			},
			{
				Key:    "expecting",
				Field:  FieldGender,
				Prompt: "Кто у вас ожидается? Выбери:",
				Options: []Option{
					{Token: "expect_boy", Label: "Мальчик", Value: "boy"},
					{Token: "expect_girl", Label: "Девочка", Value: "girl"},
					{Token: "expect_unknown", Label: "Пока не знаю", Value: "unknown"},
				},
			},
		},
		SiteLink: &Link{Label: "Перейти на сайт", URL: siteURL},
		Declined: "Ок, без согласия не можем продолжать. /start — начать заново.",
		Success: func(id int64) string {
			return fmt.Sprintf("✅ Заявка №%d сохранена.", id)
		},
		SuccessLink: &Link{Label: "Ссылка на курс", URL: siteURL},
	}
}
