package domain

import (
	"math"
	"slices"
)

// CountsTowardsRating reports whether the review participates in product aggregates.
func (r Review) CountsTowardsRating() bool {
	return r.IsActive && r.Status == ReviewStatusApproved
}

// SummarizeRatings builds the product summary from approved, active reviews. The average is
// rounded to one decimal; with no qualifying reviews both average and count are zero.
func SummarizeRatings(productID string, reviews []Review) ReviewSummary {
	summary := ReviewSummary{
		ProductID:    productID,
		Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	sum := 0
	for _, review := range reviews {
		if !review.CountsTowardsRating() {
			continue
		}
		summary.Count++
		sum += review.Rating
		summary.Distribution[review.Rating]++
	}
	if summary.Count > 0 {
		summary.Average = math.Round(float64(sum)/float64(summary.Count)*10) / 10
	}
	return summary
}

// Rating projects the summary onto the product rating block.
func (s ReviewSummary) Rating() ProductRating {
	return ProductRating{Average: s.Average, Count: s.Count}
}

// MarkHelpful adds voterID to the helpful set; a repeat vote is a no-op.
func (r *Review) MarkHelpful(voterID string) bool {
	if voterID == "" || slices.Contains(r.Helpful.Users, voterID) {
		return false
	}
	r.Helpful.Users = append(r.Helpful.Users, voterID)
	r.Helpful.Count = len(r.Helpful.Users)
	return true
}

// UnmarkHelpful removes voterID from the helpful set.
func (r *Review) UnmarkHelpful(voterID string) bool {
	before := len(r.Helpful.Users)
	r.Helpful.Users = slices.DeleteFunc(r.Helpful.Users, func(id string) bool { return id == voterID })
	r.Helpful.Count = len(r.Helpful.Users)
	return before != len(r.Helpful.Users)
}

// ValidRating reports whether rating is an integer star value between 1 and 5.
func ValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
