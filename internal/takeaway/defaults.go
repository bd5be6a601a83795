package takeaway

import "safesight/internal/core"

type defaultText struct {
	positive string
	negative string
}

// defaultTexts are neutral placeholders used when no generation is possible. They
// never claim a place is safe.
var defaultTexts = map[core.ContentType]defaultText{
	core.ContentReviews: {
		positive: core.PositiveMarker + " Not enough guest reviews mention safety to highlight positives yet.",
		negative: core.NegativeMarker + " Safety is not confirmed by guest reviews yet; check the neighbourhood before booking.",
	},
	core.ContentInsights: {
		positive: core.PositiveMarker + " No local experiences have been shared for this area yet.",
		negative: core.NegativeMarker + " Safety for this area is unverified; take usual precautions, especially at night.",
	},
	core.ContentVideos: {
		positive: core.PositiveMarker + " This video does not show clear safety signals.",
		negative: core.NegativeMarker + " Safety cannot be judged from this video alone; take usual precautions.",
	},
}
