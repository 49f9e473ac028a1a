package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myreprise-chatbot-go/internal/model"
)

func firstPhrasing(int) int { return 0 }

func sampleItems(n int) []model.RetrievedItem {
	out := make([]model.RetrievedItem, n)
	for i := range out {
		out[i] = model.RetrievedItem{
			ID:        fmt.Sprintf("%d", i+1),
			Title:     fmt.Sprintf("Offre %d", i+1),
			Price:     float64(100 * (i + 1)),
			Brand:     "Apple",
			Condition: "like_new",
			Status:    "available",
		}
	}
	return out
}

func TestComposeProductSearchFound(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)
	reply := c.Compose(model.IntentProductSearch, model.RetrievalContext{Items: sampleItems(7)}, nil, nil)

	assert.Equal(t, ReplyProductList, reply.Type)
	assert.True(t, strings.HasPrefix(reply.Text, "J'ai trouvé 7 offres qui correspondent à votre recherche :"))
	assert.Contains(t, reply.Text, "1. **Offre 1** - 100€ (Comme neuf) - Apple")
	assert.Contains(t, reply.Text, "5. **Offre 5**")
	assert.NotContains(t, reply.Text, "Offre 6")
	assert.Contains(t, reply.Text, "... et 2 autres offres.")
	assert.True(t, strings.HasSuffix(reply.Text, "Voulez-vous plus de détails sur une offre spécifique ?"))
	assert.NotEmpty(t, reply.Suggestions)
	require.Len(t, reply.Actions, 2)
}

func TestComposeProductSearchSingleAndNotFound(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)
	one := c.Compose(model.IntentProductSearch, model.RetrievalContext{Items: sampleItems(1)}, nil, nil)
	assert.True(t, strings.HasPrefix(one.Text, "J'ai trouvé 1 offre qui correspond"))
	assert.NotContains(t, one.Text, "autres offres")

	none := c.Compose(model.IntentProductSearch, model.RetrievalContext{}, nil, nil)
	assert.Equal(t, ReplyNoResults, none.Type)
	assert.Equal(t, "Je n'ai trouvé aucune offre correspondant à votre recherche. Essayez avec d'autres mots-clés.", none.Text)
}

func TestComposeRecommendationFamilies(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)
	withPrefs := model.DefaultProfile("u1")
	withPrefs.PreferredCategories = []string{"Smartphones"}

	personalized := c.Compose(model.IntentRecommendationRequest, model.RetrievalContext{Items: sampleItems(2)}, nil, withPrefs)
	assert.True(t, strings.HasPrefix(personalized.Text, "Voici mes recommandations personnalisées pour vous :"))
	assert.Contains(t, personalized.Text, "1. **Offre 1** - 100€ (Apple)")

	general := c.Compose(model.IntentRecommendationRequest, model.RetrievalContext{Items: sampleItems(2)}, nil, nil)
	assert.True(t, strings.HasPrefix(general.Text, "Voici quelques offres qui pourraient vous intéresser :"))

	empty := c.Compose(model.IntentRecommendationRequest, model.RetrievalContext{}, nil, withPrefs)
	assert.Contains(t, empty.Text, "préférences")
}

func TestComposePriceInquiry(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)
	reply := c.Compose(model.IntentPriceInquiry, model.RetrievalContext{Items: sampleItems(3)}, nil, nil)

	assert.Equal(t, ReplyPriceInfo, reply.Type)
	assert.Contains(t, reply.Text, "• Prix minimum : 100€")
	assert.Contains(t, reply.Text, "• Prix maximum : 300€")
	assert.Contains(t, reply.Text, "• Prix moyen : 200€")
	assert.Contains(t, reply.Text, "• 3 offres trouvées")

	noPrice := c.Compose(model.IntentPriceInquiry, model.RetrievalContext{Items: []model.RetrievedItem{{ID: "1"}}}, nil, nil)
	assert.Equal(t, "Les prix ne sont pas disponibles pour ces offres.", noPrice.Text)
}

func TestComposeAvailability(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)
	list := sampleItems(3)
	list[2].Status = "sold"
	reply := c.Compose(model.IntentAvailabilityCheck, model.RetrievalContext{Items: list}, nil, nil)
	assert.Equal(t, "Il y a 2 offres disponibles.", reply.Text)

	list[1].Status = "sold"
	assert.Equal(t, "Il y a 1 offre disponible.", c.Compose(model.IntentAvailabilityCheck, model.RetrievalContext{Items: list}, nil, nil).Text)
}

func TestComposeNavigation(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)

	reply := c.Compose(model.IntentPageNavigation, model.RetrievalContext{}, map[string]string{model.EntityTargetPage: "orders"}, nil)
	assert.Equal(t, ReplyNavigation, reply.Type)
	assert.Contains(t, reply.Text, "Mes Commandes")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, "orders", reply.Actions[0].Page)

	general := c.Compose(model.IntentPageNavigation, model.RetrievalContext{}, nil, nil)
	assert.Equal(t, "Comment puis-je vous aider à naviguer sur MyReprise ?", general.Text)

	support := c.Compose(model.IntentTechnicalSupport, model.RetrievalContext{}, nil, nil)
	assert.Contains(t, support.Text, "support@myreprise.com")
	account := c.Compose(model.IntentAccountHelp, model.RetrievalContext{}, nil, nil)
	assert.Contains(t, account.Text, "Mon Profil")
}

func TestComposeUnknownIntentFallsBack(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)
	reply := c.Compose(model.Intent("weather"), model.RetrievalContext{}, nil, nil)
	assert.Equal(t, "Je ne comprends pas votre demande. Pouvez-vous être plus précis ?", reply.Text)
	assert.Equal(t, ReplyFallback, reply.Type)
}

func TestComposeNeverPanics(t *testing.T) {
	c := NewResponseComposer(func(int) int { panic("boom") })
	var reply model.Reply
	assert.NotPanics(t, func() {
		reply = c.Compose(model.IntentProductSearch, model.RetrievalContext{Items: sampleItems(2)}, nil, nil)
	})
	assert.Equal(t, ReplyFallback, reply.Type)
}

func TestComposeRandomizesPhrasings(t *testing.T) {
	seen := map[string]bool{}
	next := 0
	c := NewResponseComposer(func(n int) int {
		next = (next + 1) % n
		return next
	})
	for i := 0; i < 6; i++ {
		seen[c.Compose(model.IntentProductSearch, model.RetrievalContext{}, nil, nil).Text] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestSummarize(t *testing.T) {
	c := NewResponseComposer(firstPhrasing)
	assert.Equal(t, "Aucune offre similaire trouvée.", c.Summarize(model.IntentProductSearch, nil))
	assert.Equal(t, "J'ai trouvé 3 offres correspondant à votre recherche.", c.Summarize(model.IntentProductSearch, sampleItems(3)))
	assert.Equal(t, "Les prix varient entre 100€ et 200€.", c.Summarize(model.IntentPriceInquiry, sampleItems(2)))
	assert.Equal(t, "Voici 2 offres pertinentes.", c.Summarize(model.IntentGeneralQuestion, sampleItems(2)))
}

func TestApology(t *testing.T) {
	reply := NewResponseComposer(nil).Apology()
	assert.Equal(t, ReplyError, reply.Type)
	assert.Contains(t, reply.Suggestions, "Reformuler la question")
}
