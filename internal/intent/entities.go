package intent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"myreprise-chatbot-go/internal/model"
)

var (
	knownBrands = []string{"apple", "samsung", "sony", "lg", "huawei", "xiaomi", "bmw", "mercedes", "audi"}
	brandRes    = compileWords(knownBrands)

	// 产品线名称到品牌的映射
	brandAliases = []struct {
		re    *regexp.Regexp
		brand string
	}{
		{regexp.MustCompile(`\b(iphone|ipad|macbook|airpods|imac)\b`), "apple"},
		{regexp.MustCompile(`\bgalaxy\b`), "samsung"},
		{regexp.MustCompile(`\bplaystation\b`), "sony"},
		{regexp.MustCompile(`\bredmi\b`), "xiaomi"},
	}

	knownCategories = []string{"téléphone", "smartphone", "ordinateur", "laptop", "voiture", "véhicule"}

	modelRes = []*regexp.Regexp{
		regexp.MustCompile(`iphone\s+(\d+)`),
		regexp.MustCompile(`galaxy\s+(\w+)`),
		regexp.MustCompile(`macbook\s+(\w+)`),
		regexp.MustCompile(`model\s+(\w+)`),
		regexp.MustCompile(`(\w+)\s+pro\b`),
		regexp.MustCompile(`(\w+)\s+max\b`),
	}

	amountRes = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*€`),
		regexp.MustCompile(`(\d+)\s*euros?\b`),
		regexp.MustCompile(`(\d+)\s*dh\b`),
		regexp.MustCompile(`(\d+)\s*dirhams?\b`),
	}

	lowPriceRe  = regexp.MustCompile(`pas cher|bon marché`)
	highPriceRe = regexp.MustCompile(`\bch[eè]re?s?\b|\bluxe\b`)

	titleCaser = cases.Title(language.French)
)

func compileWords(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}

// extractEntities 按意图抽取实体，text 已转为小写。
func extractEntities(text string, intent model.Intent) map[string]string {
	entities := map[string]string{}
	switch intent {
	case model.IntentProductSearch:
		extractProduct(text, entities)
		extractPriceRange(text, entities)
	case model.IntentPriceInquiry:
		extractAmount(text, entities)
		extractPriceRange(text, entities)
	case model.IntentPageNavigation:
		extractTargetPage(text, entities)
	}
	return entities
}

func extractProduct(text string, entities map[string]string) {
	for i, re := range brandRes {
		if re.MatchString(text) {
			entities[model.EntityBrand] = titleCaser.String(knownBrands[i])
			break
		}
	}
	if _, ok := entities[model.EntityBrand]; !ok {
		for _, alias := range brandAliases {
			if alias.re.MatchString(text) {
				entities[model.EntityBrand] = titleCaser.String(alias.brand)
				break
			}
		}
	}

	for _, c := range knownCategories {
		if strings.Contains(text, c) {
			entities[model.EntityCategory] = c
			break
		}
	}

	for _, re := range modelRes {
		if m := re.FindStringSubmatch(text); m != nil {
			entities[model.EntityModel] = m[1]
			break
		}
	}
}

func extractAmount(text string, entities map[string]string) {
	for _, re := range amountRes {
		if m := re.FindStringSubmatch(text); m != nil {
			entities[model.EntityAmount] = m[1]
			return
		}
	}
}

func extractPriceRange(text string, entities map[string]string) {
	// "cherche" 不能被识别为 "cher"
	switch {
	case lowPriceRe.MatchString(text):
		entities[model.EntityPriceRange] = model.PriceRangeLow
	case highPriceRe.MatchString(text):
		entities[model.EntityPriceRange] = model.PriceRangeHigh
	}
}

func extractTargetPage(text string, entities map[string]string) {
	switch {
	case strings.Contains(text, "compte") || strings.Contains(text, "profil"):
		entities[model.EntityTargetPage] = "account"
	case strings.Contains(text, "vendeur") || strings.Contains(text, "vendre"):
		entities[model.EntityTargetPage] = "seller"
	case strings.Contains(text, "commande") || strings.Contains(text, "achat"):
		entities[model.EntityTargetPage] = "orders"
	case strings.Contains(text, "support") || strings.Contains(text, "aide"):
		entities[model.EntityTargetPage] = "support"
	}
}
