package indicator

import (
	"os"

	"golang.org/x/text/language"
)

type messages struct {
	recording  string
	processing string
	enhancing  string
	errorText  string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

var supported = language.NewMatcher([]language.Tag{language.English, language.German})

// resolveLocale maps a POSIX locale such as "de_DE.UTF-8" to a supported tag.
func resolveLocale(raw string) language.Tag {
	for i, r := range raw {
		if r == '.' || r == '@' {
			raw = raw[:i]
			break
		}
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.English
	}
	_, index, _ := supported.Match(tag)
	if index == 1 {
		return language.German
	}
	return language.English
}

func indicatorMessages(tag language.Tag) messages {
	switch tag {
	case language.German:
		return messages{
			recording:  "Aufnahme…",
			processing: "Transkription…",
			enhancing:  "Überarbeitung…",
			errorText:  "Spracherkennung fehlgeschlagen",
		}
	default:
		return messages{
			recording:  "Recording…",
			processing: "Transcribing…",
			enhancing:  "Polishing…",
			errorText:  "Speech recognition error",
		}
	}
}
