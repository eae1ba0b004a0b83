package marketplace

import "github.com/holiman/uint256"

var hundred = uint256.NewInt(100)

// Distribution is how a sale price is split between the parties.
type Distribution struct {
	Royalty      *uint256.Int
	Fee          *uint256.Int
	SellerAmount *uint256.Int
}

// Split divides price into royalty, platform fee and seller share. Royalty and
// fee truncate toward zero and the seller receives the remainder, so the three
// always sum to price. ok is false when royalty and fee together exceed the
// price, which can only happen when royaltyPercent+feePercent > 100.
func Split(price *uint256.Int, royaltyPercent, feePercent uint64) (d Distribution, ok bool) {
	d.Royalty = percentOf(price, royaltyPercent)
	d.Fee = percentOf(price, feePercent)

	cut, overflow := new(uint256.Int).AddOverflow(d.Royalty, d.Fee)
	if overflow || cut.Gt(price) {
		return Distribution{}, false
	}
	d.SellerAmount = new(uint256.Int).Sub(price, cut)
	return d, true
}

// percentOf computes price*percent/100 in 512-bit intermediate precision.
func percentOf(price *uint256.Int, percent uint64) *uint256.Int {
	out, _ := new(uint256.Int).MulDivOverflow(price, uint256.NewInt(percent), hundred)
	return out
}
