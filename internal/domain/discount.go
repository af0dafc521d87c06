package domain

// DiscountOffer — предложение скидки от человека или ассистента. Не хранится.
type DiscountOffer struct {
	Percent int    `validate:"gte=0"`
	Message string `validate:"max=1000"`
	// Applied — контрагент согласился на предложение.
	Applied bool
}

// AppliedDiscount — результат принятого предложения.
type AppliedDiscount struct {
	Percent       int
	PaymentMethod PaymentMethod
	// Changed — false, если скидка уже была такой же.
	Changed    bool
	Disclosure string
}
