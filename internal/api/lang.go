package api

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/leenbank/leenbank/internal/model"
)

// Dutch comes first: it is the fallback for clients that state no preference.
var supported = []language.Tag{language.Dutch, language.English}

var matcher = language.NewMatcher(supported)

// requestLang picks the language for localized text. An explicit ?lang=
// wins over the Accept-Language header.
func requestLang(r *http.Request) string {
	prefs := []string{r.URL.Query().Get("lang"), r.Header.Get("Accept-Language")}
	for _, p := range prefs {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil || len(tags) == 0 {
			continue
		}
		_, idx, conf := matcher.Match(tags...)
		if conf == language.No {
			continue
		}
		if supported[idx] == language.English {
			return model.LangEN
		}
		return model.LangNL
	}
	return model.LangNL
}
