package service

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/vectorindex"
)

// 回复类型
const (
	ReplyProductList    = "product_list"
	ReplyNoResults      = "no_results"
	ReplyRecommendation = "recommendation_list"
	ReplyPriceInfo      = "price_info"
	ReplyAvailability   = "availability_info"
	ReplyNavigation     = "navigation_guide"
	ReplyGeneralInfo    = "general_info"
	ReplyFallback       = "general_response"
	ReplyError          = "error"
)

// listLimit 回复中最多列出的商品数
const listLimit = 5

// Picker 从 n 个等价措辞中选一个，返回 [0,n) 内的下标。
type Picker func(n int) int

// ResponseComposer 根据意图和检索结果组装模板回复。
type ResponseComposer struct {
	templates map[string]Template
	pick      Picker
}

// NewResponseComposer 创建回复组装器，pick 为 nil 时随机选择措辞。
func NewResponseComposer(pick Picker) *ResponseComposer {
	if pick == nil {
		pick = rand.IntN
	}
	return &ResponseComposer{templates: defaultTemplates(), pick: pick}
}

// Compose 组装回复，内部出错时返回固定的澄清消息。
func (c *ResponseComposer) Compose(intent model.Intent, rc model.RetrievalContext, entities map[string]string, profile *model.UserProfile) (reply model.Reply) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[ResponseComposer] 组装回复时发生 panic: %v", r)
			reply = c.Fallback()
		}
	}()

	switch intent {
	case model.IntentProductSearch:
		return c.productSearch(rc.Items)
	case model.IntentRecommendationRequest:
		return c.recommendation(rc.Items, profile)
	case model.IntentPriceInquiry:
		return c.priceInfo(rc.Items)
	case model.IntentAvailabilityCheck:
		return c.availability(rc.Items)
	case model.IntentPageNavigation:
		return c.navigation(entities[model.EntityTargetPage])
	case model.IntentAccountHelp:
		return c.navigation(firstNonEmpty(entities[model.EntityTargetPage], "account"))
	case model.IntentTechnicalSupport:
		return c.navigation(firstNonEmpty(entities[model.EntityTargetPage], "support"))
	case model.IntentGeneralQuestion:
		if len(rc.Items) > 0 {
			return c.render(tplGeneralWithOffers, ReplyGeneralInfo, map[string]string{"count": strconv.Itoa(len(rc.Items))})
		}
		return c.render(tplGeneral, ReplyGeneralInfo, nil)
	default:
		return c.Fallback()
	}
}

// Fallback 返回固定的澄清回复。
func (c *ResponseComposer) Fallback() model.Reply {
	t := c.templates[tplFallback]
	return model.Reply{Text: fallbackText, Type: ReplyFallback, Suggestions: copyStrings(t.Suggestions), Actions: []model.Action{}}
}

// Apology 返回流水线失败时的固定道歉回复。
func (c *ResponseComposer) Apology() model.Reply {
	t := c.templates[tplApology]
	return model.Reply{Text: apologyText, Type: ReplyError, Suggestions: copyStrings(t.Suggestions), Actions: []model.Action{}}
}

// Summarize 生成检索上下文的一句话摘要。
func (c *ResponseComposer) Summarize(intent model.Intent, items []model.RetrievedItem) string {
	n := len(items)
	if n == 0 {
		return "Aucune offre similaire trouvée."
	}
	switch intent {
	case model.IntentProductSearch:
		if n == 1 {
			return "J'ai trouvé 1 offre correspondant à votre recherche."
		}
		return fmt.Sprintf("J'ai trouvé %d offres correspondant à votre recherche.", n)
	case model.IntentRecommendationRequest:
		return fmt.Sprintf("Voici %d recommandations personnalisées pour vous.", n)
	case model.IntentPriceInquiry:
		if lo, hi, _, count := priceStats(items); count > 0 {
			return fmt.Sprintf("Les prix varient entre %s€ et %s€.", formatPrice(lo), formatPrice(hi))
		}
	}
	return fmt.Sprintf("Voici %d offres pertinentes.", n)
}

func (c *ResponseComposer) productSearch(items []model.RetrievedItem) model.Reply {
	if len(items) == 0 {
		reply := c.render(tplSearchNotFound, ReplyNoResults, nil)
		reply.Actions = []model.Action{
			{Type: "search_help", Label: "Aide à la recherche"},
			{Type: "contact_support", Label: "Contacter le support"},
		}
		return reply
	}

	key := tplSearchFound
	if len(items) == 1 {
		key = tplSearchFoundOne
	}
	reply := c.render(key, ReplyProductList, map[string]string{"count": strconv.Itoa(len(items))})

	lines := []string{reply.Text}
	for i, item := range limitItems(items) {
		line := fmt.Sprintf("%d. **%s**", i+1, titleOf(item))
		if item.Price > 0 {
			line += " - " + formatPrice(item.Price) + "€"
		}
		if item.Condition != "" {
			line += " (" + model.ConditionLabel(item.Condition) + ")"
		}
		if item.Brand != "" {
			line += " - " + item.Brand
		}
		lines = append(lines, line)
	}
	if extra := len(items) - listLimit; extra > 0 {
		lines = append(lines, fill(listMoreSuffix, map[string]string{"count": strconv.Itoa(extra)}))
	}
	lines = append(lines, listDetailsQuestion)
	reply.Text = strings.Join(lines, "\n")
	reply.Actions = []model.Action{
		{Type: "view_offers", Label: "Voir toutes les offres"},
		{Type: "filter", Label: "Appliquer des filtres"},
	}
	return reply
}

func (c *ResponseComposer) recommendation(items []model.RetrievedItem, profile *model.UserProfile) model.Reply {
	if len(items) == 0 {
		return c.render(tplRecoNoPreferences, ReplyRecommendation, nil)
	}
	key := tplRecoGeneral
	if profile.HasPreferences() {
		key = tplRecoPersonalized
	}
	reply := c.render(key, ReplyRecommendation, nil)

	lines := []string{reply.Text}
	for i, item := range limitItems(items) {
		line := fmt.Sprintf("%d. **%s**", i+1, titleOf(item))
		if item.Price > 0 {
			line += " - " + formatPrice(item.Price) + "€"
		}
		if item.Brand != "" {
			line += " (" + item.Brand + ")"
		}
		lines = append(lines, line)
	}
	reply.Text = strings.Join(lines, "\n")
	return reply
}

func (c *ResponseComposer) priceInfo(items []model.RetrievedItem) model.Reply {
	if len(items) == 0 {
		return c.render(tplPriceNotFound, ReplyPriceInfo, nil)
	}
	lo, hi, avg, count := priceStats(items)
	if count == 0 {
		return c.render(tplPriceUnavailable, ReplyPriceInfo, nil)
	}
	reply := c.render(tplPriceFound, ReplyPriceInfo, nil)
	reply.Text = strings.Join([]string{
		reply.Text,
		"• Prix minimum : " + formatPrice(lo) + "€",
		"• Prix maximum : " + formatPrice(hi) + "€",
		fmt.Sprintf("• Prix moyen : %.0f€", avg),
		fmt.Sprintf("• %d offres trouvées", count),
	}, "\n")
	return reply
}

func (c *ResponseComposer) availability(items []model.RetrievedItem) model.Reply {
	if len(items) == 0 {
		return c.render(tplAvailabilityNotFound, ReplyAvailability, nil)
	}
	available := 0
	for _, item := range items {
		if strings.EqualFold(item.Status, vectorindex.StatusAvailable) {
			available++
		}
	}
	switch available {
	case 0:
		return c.render(tplAvailabilityNone, ReplyAvailability, nil)
	case 1:
		return c.render(tplAvailabilityOne, ReplyAvailability, nil)
	default:
		return c.render(tplAvailabilityMany, ReplyAvailability, map[string]string{"count": strconv.Itoa(available)})
	}
}

func (c *ResponseComposer) navigation(page string) model.Reply {
	if page == "" {
		return c.render(tplNavigationGeneral, ReplyNavigation, nil)
	}
	key := navigationTemplatePrefix + page
	if _, ok := c.templates[key]; !ok {
		return c.render(tplNavigationUnknown, ReplyNavigation, nil)
	}
	reply := c.render(key, ReplyNavigation, nil)
	reply.Actions = []model.Action{{Type: "navigate", Page: page, Label: "Aller à " + page}}
	return reply
}

// render 选择一个措辞并填充占位符。
func (c *ResponseComposer) render(key, replyType string, vars map[string]string) model.Reply {
	t, ok := c.templates[key]
	if !ok || len(t.Phrasings) == 0 {
		return c.Fallback()
	}
	i := c.pick(len(t.Phrasings))
	if i < 0 || i >= len(t.Phrasings) {
		i = 0
	}
	return model.Reply{
		Text:        fill(t.Phrasings[i], vars),
		Type:        replyType,
		Suggestions: copyStrings(t.Suggestions),
		Actions:     []model.Action{},
	}
}

func limitItems(items []model.RetrievedItem) []model.RetrievedItem {
	if len(items) > listLimit {
		return items[:listLimit]
	}
	return items
}

// priceStats 统计有价格的商品的最低价、最高价、均价与数量。
func priceStats(items []model.RetrievedItem) (lo, hi, avg float64, count int) {
	sum := 0.0
	for _, item := range items {
		if item.Price <= 0 {
			continue
		}
		if count == 0 || item.Price < lo {
			lo = item.Price
		}
		if count == 0 || item.Price > hi {
			hi = item.Price
		}
		sum += item.Price
		count++
	}
	if count > 0 {
		avg = sum / float64(count)
	}
	return lo, hi, avg, count
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func titleOf(item model.RetrievedItem) string {
	if item.Title == "" {
		return "Sans titre"
	}
	return item.Title
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func copyStrings(in []string) []string {
	return append([]string{}, in...)
}
