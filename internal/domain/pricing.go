package domain

import (
	"errors"
	"fmt"
)

const (
	// DefaultTaxRateBasisPoints is the flat 18% GST applied to every subtotal.
	DefaultTaxRateBasisPoints = 1800
	// DefaultShippingFee is charged when the subtotal does not exceed the free shipping threshold.
	DefaultShippingFee int64 = 5000
	// DefaultFreeShippingThreshold is the subtotal above which shipping is waived.
	DefaultFreeShippingThreshold int64 = 50000
)

// ErrPricingInvalidLine is returned when a pricing line fails validation.
var ErrPricingInvalidLine = errors.New("pricing: invalid line")

// Pricing is the monetary breakdown shared by orders and group orders.
// total = subtotal - discount + tax + shipping, never negative.
type Pricing struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Shipping int64
	Total    int64
}

// PricingLine is one priced input line.
type PricingLine struct {
	UnitPrice       int64
	Quantity        int
	VariantModifier int64
}

// LineTotal returns (unitPrice + variantModifier) * quantity.
func (l PricingLine) LineTotal() int64 {
	return (l.UnitPrice + l.VariantModifier) * int64(l.Quantity)
}

// PricingPolicy carries the configurable tax and shipping constants.
type PricingPolicy struct {
	TaxRateBasisPoints    int64
	ShippingFee           int64
	FreeShippingThreshold int64
}

// DefaultPricingPolicy returns the campus store defaults.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRateBasisPoints:    DefaultTaxRateBasisPoints,
		ShippingFee:           DefaultShippingFee,
		FreeShippingThreshold: DefaultFreeShippingThreshold,
	}
}

// PricingOptions tunes a single calculation.
type PricingOptions struct {
	Discount      int64
	WaiveShipping bool
}

// CalculatePricing computes the pricing block for the supplied lines. All amounts are in the
// smallest currency unit so rounding to two decimals happens once, on the tax.
func (p PricingPolicy) CalculatePricing(lines []PricingLine, opts PricingOptions) (Pricing, error) {
	if opts.Discount < 0 {
		return Pricing{}, fmt.Errorf("%w: discount must be >= 0", ErrPricingInvalidLine)
	}
	var subtotal int64
	for i, line := range lines {
		if line.Quantity < 1 {
			return Pricing{}, fmt.Errorf("%w: line %d quantity must be >= 1", ErrPricingInvalidLine, i)
		}
		if line.UnitPrice < 0 {
			return Pricing{}, fmt.Errorf("%w: line %d unit price must be >= 0", ErrPricingInvalidLine, i)
		}
		if line.UnitPrice+line.VariantModifier < 0 {
			return Pricing{}, fmt.Errorf("%w: line %d variant modifier exceeds unit price", ErrPricingInvalidLine, i)
		}
		subtotal += line.LineTotal()
	}

	tax := p.Tax(subtotal)
	shipping := p.Shipping(subtotal)
	if opts.WaiveShipping {
		shipping = 0
	}
	return NewPricing(subtotal, opts.Discount, tax, shipping), nil
}

// Tax returns round(subtotal * rate) in minor units, rounding half away from zero.
func (p PricingPolicy) Tax(subtotal int64) int64 {
	return roundDiv(subtotal*p.TaxRateBasisPoints, 10000)
}

// Shipping returns the flat fee unless subtotal is strictly above the threshold.
func (p PricingPolicy) Shipping(subtotal int64) int64 {
	if subtotal > p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFee
}

// NewPricing assembles a pricing block and derives its total.
func NewPricing(subtotal, discount, tax, shipping int64) Pricing {
	total := subtotal - discount + tax + shipping
	if total < 0 {
		total = 0
	}
	return Pricing{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}
}

// Add returns the elementwise sum of two pricing blocks.
func (p Pricing) Add(other Pricing) Pricing {
	return Pricing{
		Subtotal: p.Subtotal + other.Subtotal,
		Discount: p.Discount + other.Discount,
		Tax:      p.Tax + other.Tax,
		Shipping: p.Shipping + other.Shipping,
		Total:    p.Total + other.Total,
	}
}

// FinalPrice applies the percentage discount to price, rounding to the nearest minor unit.
func FinalPrice(price int64, discountPercent float64) int64 {
	if discountPercent <= 0 {
		return price
	}
	if discountPercent >= 100 {
		return 0
	}
	// basis points keep the arithmetic integral for discounts like 12.5%.
	bp := int64(discountPercent*100 + 0.5)
	return roundDiv(price*(10000-bp), 10000)
}

// FinalPrice returns the discounted unit price of the product.
func (p Product) FinalPrice() int64 {
	return FinalPrice(p.Price, p.DiscountPercent)
}

func roundDiv(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	if numerator < 0 {
		return -roundDiv(-numerator, denominator)
	}
	return (numerator + denominator/2) / denominator
}
