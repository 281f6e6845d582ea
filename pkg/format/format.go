package format

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const pointsSuffix = "P"

var printers = map[string]*message.Printer{}

// korean translates catalog keys. Keys are the English text.
var korean = map[string]string{
	"not enough points: %s available, %s required": "포인트가 부족합니다: 보유 %s, 필요 %s",
	"log in to purchase":                           "로그인 후 구매할 수 있습니다",
	"nothing left to purchase":                     "구매할 상품이 없습니다",
	"purchase details are temporarily unavailable": "구매 정보를 일시적으로 불러올 수 없습니다",
}

func init() {
	for key, msg := range korean {
		_ = message.SetString(language.Korean, key, msg)
	}
	for _, tag := range []language.Tag{language.Korean, language.English} {
		printers[tag.String()] = message.NewPrinter(tag)
	}
}

func printerFor(lang string) *message.Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		return printers[language.Korean.String()]
	}
	base, _ := tag.Base()
	if p, ok := printers[base.String()]; ok {
		return p
	}
	return printers[language.Korean.String()]
}

// Points renders a points amount with locale grouping, e.g. Points(3000, "ko") => "3,000 P".
func Points(amount int64, lang string) string {
	return printerFor(lang).Sprintf("%d %s", amount, pointsSuffix)
}

// Message renders a catalog message in lang. Unknown keys are used as the format as-is.
func Message(lang, key string, args ...any) string {
	return printerFor(lang).Sprintf(key, args...)
}

// Timestamp renders settlement times for receipts.
func Timestamp(t time.Time, lang string) string {
	base := "ko"
	if tag, err := language.Parse(lang); err == nil {
		b, _ := tag.Base()
		base = b.String()
	}
	switch base {
	case "en":
		return t.Format("Jan 2, 2006 15:04:05")
	default:
		return t.Format("2006. 1. 2. 15:04:05")
	}
}
