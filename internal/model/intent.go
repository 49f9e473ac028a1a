// Package model 包含了应用的数据模型定义。
package model

// Intent 是用户消息的意图类别，取值为封闭集合。
type Intent string

const (
	IntentProductSearch         Intent = "product_search"
	IntentPageNavigation        Intent = "page_navigation"
	IntentPriceInquiry          Intent = "price_inquiry"
	IntentAvailabilityCheck     Intent = "availability_check"
	IntentRecommendationRequest Intent = "recommendation_request"
	IntentGeneralQuestion       Intent = "general_question"
	IntentAccountHelp           Intent = "account_help"
	IntentTechnicalSupport      Intent = "technical_support"
)

// Intents 按声明顺序列出所有意图，分类时平分按此顺序取第一个。
var Intents = []Intent{
	IntentProductSearch,
	IntentPageNavigation,
	IntentPriceInquiry,
	IntentAvailabilityCheck,
	IntentRecommendationRequest,
	IntentGeneralQuestion,
	IntentAccountHelp,
	IntentTechnicalSupport,
}

// Valid 判断意图是否属于封闭集合。
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// 实体名称
const (
	EntityBrand      = "brand"
	EntityCategory   = "category"
	EntityModel      = "model"
	EntityAmount     = "amount"
	EntityPriceRange = "price_range"
	EntityTargetPage = "target_page"
)

// 价格区间档位
const (
	PriceRangeLow  = "low"
	PriceRangeHigh = "high"
)

// Classification 是一次意图分类的结果。
type Classification struct {
	Intent     Intent            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Text       string            `json:"text"`
	// 分类内部出错时的标记，正常情况下为空
	Err string `json:"error,omitempty"`
}
