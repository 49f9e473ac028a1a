package service

import "strings"

// Template 是一个回复模板：若干等价的措辞和一组建议。
// 措辞中的 {name} 占位符由 fill 替换。
type Template struct {
	Phrasings   []string
	Suggestions []string
}

// 模板键
const (
	tplSearchFound            = "product_search.found"
	tplSearchFoundOne         = "product_search.found_one"
	tplSearchNotFound         = "product_search.not_found"
	tplRecoPersonalized       = "recommendation.personalized"
	tplRecoGeneral            = "recommendation.general"
	tplRecoNoPreferences      = "recommendation.no_preferences"
	tplPriceFound             = "price_inquiry.found"
	tplPriceNotFound          = "price_inquiry.not_found"
	tplPriceUnavailable       = "price_inquiry.unavailable"
	tplAvailabilityMany       = "availability.many"
	tplAvailabilityOne        = "availability.one"
	tplAvailabilityNone       = "availability.none"
	tplAvailabilityNotFound   = "availability.not_found"
	tplNavigationGeneral      = "navigation.general"
	tplNavigationUnknown      = "navigation.unknown"
	tplGeneral                = "general"
	tplGeneralWithOffers      = "general.with_offers"
	tplFallback               = "fallback"
	tplApology                = "error.general"
	navigationTemplatePrefix  = "navigation."
	listDetailsQuestion       = "Voulez-vous plus de détails sur une offre spécifique ?"
	listMoreSuffix            = "... et {count} autres offres."
	fallbackText              = "Je ne comprends pas votre demande. Pouvez-vous être plus précis ?"
	apologyText               = "Je suis désolé, une erreur s'est produite. Pouvez-vous reformuler votre question ?"
	rephraseSuggestion        = "Reformuler la question"
)

// defaultTemplates 内置的法语模板。
func defaultTemplates() map[string]Template {
	return map[string]Template{
		tplSearchFound: {
			Phrasings: []string{
				"J'ai trouvé {count} offres qui correspondent à votre recherche :",
				"Voici {count} résultats pour votre recherche :",
				"Parfait ! J'ai trouvé {count} offres qui pourraient vous intéresser :",
			},
			Suggestions: []string{"Voir plus d'offres", "Modifier les filtres", "Demander des recommandations", "Voir les détails d'une offre"},
		},
		tplSearchFoundOne: {
			Phrasings: []string{
				"J'ai trouvé 1 offre qui correspond à votre recherche :",
				"Voici 1 résultat pour votre recherche :",
			},
			Suggestions: []string{"Voir plus d'offres", "Modifier les filtres", "Demander des recommandations", "Voir les détails d'une offre"},
		},
		tplSearchNotFound: {
			Phrasings: []string{
				"Je n'ai trouvé aucune offre correspondant à votre recherche. Essayez avec d'autres mots-clés.",
				"Désolé, aucun résultat trouvé. Pouvez-vous reformuler votre recherche ?",
				"Aucune offre ne correspond à vos critères. Essayez d'autres termes de recherche.",
			},
			Suggestions: []string{"Essayer d'autres mots-clés", "Voir toutes les offres disponibles", "Demander des recommandations", "Parler à un conseiller"},
		},
		tplRecoPersonalized: {
			Phrasings: []string{
				"Voici mes recommandations personnalisées pour vous :",
				"Basé sur vos préférences, je vous recommande :",
				"Voici des offres qui correspondent à vos goûts :",
			},
			Suggestions: []string{"Voir plus de recommandations", "Modifier mes préférences", "Voir les détails d'une offre"},
		},
		tplRecoGeneral: {
			Phrasings: []string{
				"Voici quelques offres qui pourraient vous intéresser :",
				"Découvrez ces offres populaires :",
				"Voici des suggestions pour vous :",
			},
			Suggestions: []string{"Voir plus d'offres", "Personnaliser mes préférences", "Explorer par catégorie"},
		},
		tplRecoNoPreferences: {
			Phrasings: []string{
				"Je n'ai pas encore assez d'informations sur vos préférences. Parlez-moi de ce que vous aimez !",
				"Pour vous faire de meilleures recommandations, dites-moi ce qui vous intéresse.",
				"Aidez-moi à vous connaître mieux en me parlant de vos goûts !",
			},
			Suggestions: []string{"Parlons de vos préférences", "Voir les offres populaires", "Explorer par catégorie"},
		},
		tplPriceFound: {
			Phrasings: []string{
				"Voici les informations de prix pour cette recherche :",
				"Voici les prix que j'ai trouvés :",
				"Voici les informations tarifaires :",
			},
			Suggestions: []string{"Voir les offres dans ma gamme de prix", "Filtrer par prix", "Voir les détails d'une offre"},
		},
		tplPriceNotFound: {
			Phrasings: []string{
				"Je n'ai pas d'informations de prix pour cette recherche.",
				"Aucune information tarifaire trouvée.",
			},
			Suggestions: []string{"Essayer une autre recherche", "Voir toutes les offres"},
		},
		tplPriceUnavailable: {
			Phrasings:   []string{"Les prix ne sont pas disponibles pour ces offres."},
			Suggestions: []string{"Contacter le vendeur", "Voir d'autres offres"},
		},
		tplAvailabilityMany: {
			Phrasings:   []string{"Il y a {count} offres disponibles."},
			Suggestions: []string{"Voir les offres disponibles", "Affiner la recherche"},
		},
		tplAvailabilityOne: {
			Phrasings:   []string{"Il y a 1 offre disponible."},
			Suggestions: []string{"Voir l'offre", "Affiner la recherche"},
		},
		tplAvailabilityNone: {
			Phrasings:   []string{"Malheureusement, aucune offre n'est actuellement disponible."},
			Suggestions: []string{"Réessayer plus tard", "Voir toutes les offres"},
		},
		tplAvailabilityNotFound: {
			Phrasings: []string{
				"Aucune offre disponible pour cette recherche.",
				"Aucune offre disponible actuellement.",
			},
			Suggestions: []string{"Réessayer plus tard", "Voir toutes les offres", "Contacter le support"},
		},
		navigationTemplatePrefix + "account": {
			Phrasings: []string{
				"Pour gérer votre compte, allez dans la section 'Mon Profil' en haut à droite.",
				"Vous pouvez accéder à votre compte via le menu 'Mon Profil'.",
				"Cliquez sur 'Mon Profil' pour gérer votre compte.",
			},
			Suggestions: []string{"Aller à mon profil", "Modifier mes informations", "Voir mes paramètres"},
		},
		navigationTemplatePrefix + "seller": {
			Phrasings: []string{
				"Pour devenir vendeur, cliquez sur 'Devenir Vendeur' dans le menu principal.",
				"Vous pouvez vous inscrire comme vendeur via le menu 'Devenir Vendeur'.",
				"Accédez à l'inscription vendeur depuis le menu principal.",
			},
			Suggestions: []string{"Devenir vendeur", "Voir les conditions", "En savoir plus"},
		},
		navigationTemplatePrefix + "orders": {
			Phrasings: []string{
				"Pour voir vos commandes, allez dans 'Mes Commandes' dans votre profil.",
				"Vous trouverez vos commandes dans la section 'Mes Commandes'.",
				"Accédez à vos commandes via votre profil.",
			},
			Suggestions: []string{"Voir mes commandes", "Suivre une commande", "Historique des achats"},
		},
		navigationTemplatePrefix + "support": {
			Phrasings: []string{
				"Pour le support, contactez-nous via le formulaire de contact ou l'email support@myreprise.com.",
				"Vous pouvez nous contacter via le formulaire de contact ou par email.",
				"Notre équipe support est disponible via le formulaire de contact.",
			},
			Suggestions: []string{"Contacter le support", "Voir la FAQ", "Signaler un problème"},
		},
		tplNavigationGeneral: {
			Phrasings: []string{
				"Comment puis-je vous aider à naviguer sur MyReprise ?",
				"Que souhaitez-vous faire sur notre site ?",
				"Dites-moi ce que vous cherchez à accomplir.",
			},
			Suggestions: []string{"Créer un compte", "Devenir vendeur", "Voir mes commandes", "Contacter le support"},
		},
		tplNavigationUnknown: {
			Phrasings:   []string{"Je ne trouve pas cette page. Pouvez-vous préciser ?"},
			Suggestions: []string{"Créer un compte", "Devenir vendeur", "Voir mes commandes", "Contacter le support"},
		},
		tplGeneral: {
			Phrasings:   []string{"Je suis là pour vous aider ! Posez-moi une question sur nos offres ou nos services."},
			Suggestions: []string{"Chercher un produit", "Voir les recommandations", "Obtenir de l'aide", "Explorer les catégories"},
		},
		tplGeneralWithOffers: {
			Phrasings:   []string{"J'ai trouvé {count} offres qui pourraient vous intéresser. Voulez-vous que je vous en dise plus ?"},
			Suggestions: []string{"Voir les offres", "Chercher un produit", "Obtenir de l'aide"},
		},
		tplFallback: {
			Phrasings:   []string{fallbackText},
			Suggestions: []string{"Chercher un produit", "Obtenir de l'aide", "Voir les offres populaires"},
		},
		tplApology: {
			Phrasings:   []string{apologyText},
			Suggestions: []string{"Réessayer", rephraseSuggestion, "Contacter le support"},
		},
	}
}

// fill 用 vars 替换措辞中的占位符。
func fill(phrasing string, vars map[string]string) string {
	if len(vars) == 0 {
		return phrasing
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(phrasing)
}
