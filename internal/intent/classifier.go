// Package intent 基于声明式模式表对用户消息做意图分类和实体抽取。
package intent

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"myreprise-chatbot-go/internal/config"
	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/pkg/log"
)

// DefaultThreshold 低于该置信度时回退为 general_question
const DefaultThreshold = 0.7

// fallbackConfidence 回退为 general_question 时的置信度
const fallbackConfidence = 0.5

// Classifier 定义了意图分类操作。
type Classifier interface {
	Classify(text string) model.Classification
}

type compiledRule struct {
	re     *regexp.Regexp
	weight float64
}

type patternClassifier struct {
	threshold float64
	rules     map[model.Intent][]compiledRule
}

// New 编译意图表并创建分类器。threshold <= 0 时使用默认阈值。
func New(table Table, threshold float64) (Classifier, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	rules := make(map[model.Intent][]compiledRule, len(table))
	for intent, patterns := range table {
		if !intent.Valid() {
			return nil, fmt.Errorf("未知意图: %s", intent)
		}
		if len(patterns) == 0 {
			continue
		}
		even := 1 / float64(len(patterns))
		compiled := make([]compiledRule, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile(strings.ToLower(p.Pattern))
			if err != nil {
				return nil, fmt.Errorf("意图 %s 的模式 %q 无法编译: %w", intent, p.Pattern, err)
			}
			w := p.Weight
			if w <= 0 {
				w = even
			}
			compiled = append(compiled, compiledRule{re: re, weight: w})
		}
		rules[intent] = compiled
	}
	return &patternClassifier{threshold: threshold, rules: rules}, nil
}

// NewFromConfig 使用配置中的意图表创建分类器，配置为空时使用内置表。
func NewFromConfig(cfg config.IntentConfig) (Classifier, error) {
	table := DefaultTable()
	if len(cfg.Patterns) > 0 {
		table = make(Table, len(cfg.Patterns))
		for name, patterns := range cfg.Patterns {
			rules := make([]Rule, 0, len(patterns))
			for _, p := range patterns {
				rules = append(rules, Rule{Pattern: p.Pattern, Weight: p.Weight})
			}
			table[model.Intent(name)] = rules
		}
		log.Infof("[IntentClassifier] 使用配置中的意图表, 意图数: %d", len(table))
	}
	return New(table, cfg.Threshold)
}

// Classify 对文本做意图分类，永不 panic。
func (c *patternClassifier) Classify(text string) (result model.Classification) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[IntentClassifier] 分类时发生异常: %v", r)
			result = model.Classification{
				Intent:     model.IntentGeneralQuestion,
				Confidence: 0,
				Entities:   map[string]string{},
				Text:       text,
				Err:        fmt.Sprint(r),
			}
		}
	}()

	lower := strings.ToLower(strings.TrimSpace(text))

	best := model.IntentGeneralQuestion
	bestScore := -1.0
	for _, intent := range model.Intents {
		score := c.score(intent, lower)
		// 严格大于，平分时保留声明顺序靠前的意图
		if score > bestScore {
			best, bestScore = intent, score
		}
	}

	confidence := bestScore
	if confidence < c.threshold {
		best = model.IntentGeneralQuestion
		confidence = fallbackConfidence
	}

	return model.Classification{
		Intent:     best,
		Confidence: math.Round(confidence*1000) / 1000,
		Entities:   extractEntities(lower, best),
		Text:       text,
	}
}

func (c *patternClassifier) score(intent model.Intent, text string) float64 {
	var sum float64
	for _, r := range c.rules[intent] {
		if r.re.MatchString(text) {
			sum += r.weight
		}
	}
	return math.Min(1, sum)
}
