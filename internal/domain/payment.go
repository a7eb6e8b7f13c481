package domain

import "strings"

const (
	PaymentCash      = "cash"
	PaymentGCash     = "gcash"
	PaymentGrabFood  = "grabfood"
	PaymentFoodPanda = "foodpanda"
)

// paymentSynonyms maps till shorthand and spaced spellings onto the canonical
// methods. Bare "grab" is left out: it may mean GrabPay.
var paymentSynonyms = map[string]string{
	"grabf":      PaymentGrabFood,
	"grab food":  PaymentGrabFood,
	"foodp":      PaymentFoodPanda,
	"food panda": PaymentFoodPanda,
	"g-cash":     PaymentGCash,
}

func NormalizePaymentMethod(raw string) string {
	method := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := paymentSynonyms[method]; ok {
		return canonical
	}
	return method
}

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentGCash, PaymentGrabFood, PaymentFoodPanda:
		return true
	default:
		return false
	}
}

// AddToMethod accumulates amount into the payment-method bucket of t.
func (t *SalesTotals) AddToMethod(method string, amount Money) {
	switch method {
	case PaymentCash:
		t.Cash = t.Cash.Add(amount)
	case PaymentGCash:
		t.GCash = t.GCash.Add(amount)
	case PaymentGrabFood:
		t.GrabFood = t.GrabFood.Add(amount)
	case PaymentFoodPanda:
		t.FoodPanda = t.FoodPanda.Add(amount)
	}
}
