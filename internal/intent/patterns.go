package intent

import "myreprise-chatbot-go/internal/model"

// Rule 是意图表中的一个模式。Weight 为 0 时取 1/len(该意图的模式数)。
type Rule struct {
	Pattern string
	Weight  float64
}

// Table 是意图到有序模式列表的映射。
type Table map[model.Intent][]Rule

// anchor 是单独出现即可判定意图的强模式权重
const anchor = 0.75

// DefaultTable 返回内置的法语意图表。
func DefaultTable() Table {
	return Table{
		model.IntentProductSearch: {
			{Pattern: `je cherche`, Weight: anchor},
			{Pattern: `trouve`},
			{Pattern: `montre`},
			{Pattern: `veux`},
			{Pattern: `besoin`},
			{Pattern: `recherche`, Weight: anchor},
			{Pattern: `disponible`},
			{Pattern: `avoir`},
			{Pattern: `acheter`, Weight: anchor},
		},
		model.IntentPageNavigation: {
			{Pattern: `comment`},
			{Pattern: `où`},
			{Pattern: `page`},
			{Pattern: `section`},
			{Pattern: `menu`},
			{Pattern: `naviguer`, Weight: anchor},
			{Pattern: `aller`},
			{Pattern: `accéder`, Weight: anchor},
			{Pattern: `créer un compte`, Weight: anchor},
		},
		model.IntentPriceInquiry: {
			{Pattern: `prix`, Weight: anchor},
			{Pattern: `coûte`, Weight: anchor},
			{Pattern: `combien`, Weight: anchor},
			{Pattern: `tarif`, Weight: anchor},
			{Pattern: `réduction`},
			{Pattern: `promotion`},
			{Pattern: `offre`},
			{Pattern: `gratuit`},
			{Pattern: `\bcher\b`},
			{Pattern: `pas cher`},
		},
		model.IntentAvailabilityCheck: {
			{Pattern: `disponible`},
			{Pattern: `stock`, Weight: anchor},
			{Pattern: `encore`},
			{Pattern: `toujours`},
			{Pattern: `vendu`},
			{Pattern: `réservé`, Weight: anchor},
			{Pattern: `libre`},
			{Pattern: `occupé`},
		},
		model.IntentRecommendationRequest: {
			{Pattern: `conseill`, Weight: anchor},
			{Pattern: `recommand`, Weight: anchor},
			{Pattern: `populaire`},
			{Pattern: `similaire`},
			{Pattern: `suggère`, Weight: anchor},
			{Pattern: `meilleur`},
			{Pattern: `\btop\b`},
			{Pattern: `intéressant`},
		},
		model.IntentAccountHelp: {
			{Pattern: `compte`, Weight: 0.4},
			{Pattern: `profil`, Weight: 0.4},
			{Pattern: `connexion`, Weight: anchor},
			{Pattern: `inscription`, Weight: anchor},
			{Pattern: `mot de passe`, Weight: anchor},
			{Pattern: `email`},
			{Pattern: `utilisateur`},
		},
		model.IntentTechnicalSupport: {
			{Pattern: `problème`, Weight: 0.4},
			{Pattern: `erreur`, Weight: 0.4},
			{Pattern: `\bbug`, Weight: anchor},
			{Pattern: `ne marche pas`, Weight: anchor},
			{Pattern: `support`},
			{Pattern: `aide`},
			{Pattern: `technique`},
			{Pattern: `dysfonctionnement`, Weight: anchor},
		},
	}
}
