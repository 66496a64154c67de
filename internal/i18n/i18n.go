package i18n

import "fmt"

// Default is the fallback interface language.
const Default = "en"

// messages maps language → key → format string. Unknown languages fall back
// to English; unknown keys render as the key itself so a missing string is
// visible instead of silent.
var messages = map[string]map[string]string{
	"en": {
		"welcome": "Welcome! Your profile is set up: %s → %s, level %s.\nAdd words with /add <word>, then run /lesson to practice.",
		"welcome_back":            "Profile switched: %s → %s, level %s.",
		"help":                    "Commands:\n%s\nDuring a lesson, just type your answer.",
		"cmd_start":               "set up a profile",
		"cmd_add":                 "add a word to your vocabulary",
		"cmd_lesson":              "start or resume a lesson",
		"cmd_stats":               "your progress",
		"cmd_notify":              "reminder toggle",
		"cmd_lang":                "interface language",
		"cmd_help":                "this message",
		"need_start":              "Set up a profile first: /start [native] [target] [level].",
		"word_added":              "Added “%s” — %s. Examples:\n%s",
		"word_added_plain":        "Added “%s” — %s.",
		"word_exists":             "“%s” is already in your vocabulary.",
		"add_usage":               "Usage: /add <word>",
		"translation_unavailable": "Translation is unavailable right now, please try again later.",
		"lesson_started":          "Lesson started: %d words. Here we go!",
		"lesson_resumed":          "Resuming your lesson, %d words left.",
		"lesson_empty":            "No words to practice yet. Add some with /add <word>.",
		"question_input":          "Translate: %s",
		"question_choice":         "Translate: %s\nPick the right answer:",
		"answer_correct":          "Correct!",
		"answer_correct_typo":     "Correct, minor typo. The exact spelling is %s.",
		"answer_incorrect":        "Incorrect. %s",
		"lesson_summary":          "Lesson complete!\nWords: %d\nCorrect: %d\nWrong: %d\nAccuracy: %.0f%%\nTime: %s",
		"stats":                   "Your progress:\nWords: %d (new %d, learning %d, reviewing %d, mastered %d)\nDue now: %d\nAccuracy: %.0f%%",
		"notify_on":               "Reminders are on.",
		"notify_off":              "Reminders are off.",
		"notify_usage":            "Usage: /notify on|off",
		"notify_nudge":            "Time to practice! You have %d words due. Run /lesson when ready.",
		"lang_switched":           "Interface language switched to %s.",
		"lang_usage":              "Usage: /lang en|ru",
		"unknown_command":         "Unknown command: /%s. Type /help for the list.",
		"no_active_lesson":        "No active lesson. Start one with /lesson.",
		"error_generic":           "Something went wrong, please try again.",
	},
	"ru": {
		"welcome": "Добро пожаловать! Профиль настроен: %s → %s, уровень %s.\nДобавляйте слова через /add <слово>, затем /lesson для тренировки.",
		"welcome_back":            "Профиль переключён: %s → %s, уровень %s.",
		"help":                    "Команды:\n%s\nВо время урока просто пишите ответ.",
		"cmd_start":               "настроить профиль",
		"cmd_add":                 "добавить слово в словарь",
		"cmd_lesson":              "начать или продолжить урок",
		"cmd_stats":               "ваш прогресс",
		"cmd_notify":              "напоминания",
		"cmd_lang":                "язык интерфейса",
		"cmd_help":                "это сообщение",
		"need_start":              "Сначала настройте профиль: /start [родной] [изучаемый] [уровень].",
		"word_added":              "Добавлено «%s» — %s. Примеры:\n%s",
		"word_added_plain":        "Добавлено «%s» — %s.",
		"word_exists":             "«%s» уже есть в вашем словаре.",
		"add_usage":               "Использование: /add <слово>",
		"translation_unavailable": "Перевод сейчас недоступен, попробуйте позже.",
		"lesson_started":          "Урок начат: %d слов. Поехали!",
		"lesson_resumed":          "Продолжаем урок, осталось %d слов.",
		"lesson_empty":            "Пока нечего тренировать. Добавьте слова через /add <слово>.",
		"question_input":          "Переведите: %s",
		"question_choice":         "Переведите: %s\nВыберите правильный ответ:",
		"answer_correct":          "Верно!",
		"answer_correct_typo":     "Верно, небольшая опечатка. Правильное написание: %s.",
		"answer_incorrect":        "Неверно. %s",
		"lesson_summary":          "Урок завершён!\nСлов: %d\nВерно: %d\nОшибок: %d\nТочность: %.0f%%\nВремя: %s",
		"stats":                   "Ваш прогресс:\nСлов: %d (новых %d, изучается %d, повторяется %d, освоено %d)\nК повторению: %d\nТочность: %.0f%%",
		"notify_on":               "Напоминания включены.",
		"notify_off":              "Напоминания выключены.",
		"notify_usage":            "Использование: /notify on|off",
		"notify_nudge":            "Пора позаниматься! Слов к повторению: %d. Запустите /lesson.",
		"lang_switched":           "Язык интерфейса: %s.",
		"lang_usage":              "Использование: /lang en|ru",
		"unknown_command":         "Неизвестная команда: /%s. Список — /help.",
		"no_active_lesson":        "Нет активного урока. Начните через /lesson.",
		"error_generic":           "Что-то пошло не так, попробуйте ещё раз.",
	},
}

// Supported reports whether an interface language is available.
func Supported(lang string) bool {
	_, ok := messages[lang]
	return ok
}

// Name returns the language's display name for model feedback prompts.
func Name(lang string) string {
	switch lang {
	case "ru":
		return "Russian"
	default:
		return "English"
	}
}

// T renders a localized message.
func T(lang, key string, args ...any) string {
	table, ok := messages[lang]
	if !ok {
		table = messages[Default]
	}
	format, ok := table[key]
	if !ok {
		if format, ok = messages[Default][key]; !ok {
			return key
		}
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
