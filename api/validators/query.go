package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	pkgerrors "github.com/fafportal/checkout/pkg/errors"
)

const defaultLanguage = "ko"

var supportedLanguages = language.NewMatcher([]language.Tag{language.Korean, language.English})

// ParseProductID reads a positive product id from the chi URL parameter key.
func ParseProductID(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "path parameter required").WithDetails(map[string]any{"field": key})
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "path parameter must be a positive integer").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// Language picks the response language from ?lang= or Accept-Language, defaulting to Korean.
func Language(r *http.Request) string {
	if lang := strings.TrimSpace(r.URL.Query().Get("lang")); lang != "" {
		if tag, err := language.Parse(lang); err == nil {
			_, idx, _ := supportedLanguages.Match(tag)
			return baseOf(idx)
		}
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		tags, _, err := language.ParseAcceptLanguage(header)
		if err == nil && len(tags) > 0 {
			_, idx, conf := supportedLanguages.Match(tags...)
			if conf != language.No {
				return baseOf(idx)
			}
		}
	}
	return defaultLanguage
}

func baseOf(idx int) string {
	if idx == 1 {
		return "en"
	}
	return defaultLanguage
}
