package honeypot

import "github.com/saat-labs/trapline/pkg/detect"

// Seed follow-up questions per scam category. The first entry of each list
// is the deterministic seed hint: it anchors the oracle's paraphrase and is
// the reply of last resort when the oracle gives nothing usable.
var defaultFollowups = map[detect.ScamType][]string{
	detect.ScamPhishing: {
		"why is my account being blocked",
		"what do i need to verify",
		"can you explain this",
	},
	detect.ScamPayment: {
		"how am i supposed to pay this",
		"where do i send the money",
		"what is this fee for",
	},
	detect.ScamImpersonation: {
		"who is this exactly",
		"how do i check this is legit",
		"can you share more details",
	},
	detect.ScamLottery: {
		"how did i win this",
		"what is this about",
		"can you explain how this works",
	},
	detect.ScamOther: {
		"can you explain this",
		"what is this regarding",
		"why am i getting this message",
	},
}

// followupsFor resolves the seed list for a category. The switch keeps the
// mapping closed over the ScamType enum: anything outside the four mapped
// categories takes the default arm.
func followupsFor(table map[detect.ScamType][]string, t detect.ScamType) []string {
	switch t {
	case detect.ScamPhishing, detect.ScamPayment, detect.ScamImpersonation, detect.ScamLottery:
		if list, ok := table[t]; ok && len(list) > 0 {
			return list
		}
	}
	if list, ok := table[detect.ScamOther]; ok && len(list) > 0 {
		return list
	}
	return defaultFollowups[detect.ScamOther]
}
