package scoring

import "strings"

// themeGroups maps a canonical theme bucket to the tags that belong to it.
// Place data is mostly Korean so each bucket carries both vocabularies.
var themeGroups = map[string][]string{
	"nature": {
		"nature", "sea", "beach", "coast", "shore", "mountain", "lake", "river", "forest", "park", "sunset", "sunrise",
		"자연", "바다", "산", "호수", "강", "숲", "공원", "해변", "노을", "일출",
	},
	"healing": {
		"healing", "relax", "rest", "quiet", "peaceful",
		"힐링", "휴양", "휴식", "조용한", "평화로운", "여유",
	},
	"activity": {
		"activity", "leisure", "sports", "experience", "play", "adventure",
		"액티비티", "레저", "스포츠", "체험", "놀이", "어드벤처",
	},
	"history": {
		"history", "heritage", "ruins", "traditional", "palace", "museum", "temple",
		"역사", "문화재", "유적", "전통", "고궁", "박물관", "사찰",
	},
	"city": {
		"city", "night view", "downtown", "shopping", "modern",
		"도시", "야경", "시내", "번화가", "쇼핑", "현대",
	},
	"food": {
		"food", "restaurant", "local food", "gourmet",
		"맛집", "음식", "식당", "먹거리", "미식", "로컬푸드",
	},
	"cafe": {
		"cafe", "dessert", "bakery", "coffee", "brunch",
		"카페", "디저트", "베이커리", "커피", "브런치",
	},
	"photo": {
		"photo spot", "instagram", "view", "scenery",
		"사진명소", "포토스팟", "인스타", "뷰맛집", "전망", "경치",
	},
}

// synonymIndex is the reverse lookup of themeGroups: tag -> bucket.
type synonymIndex map[string]string

func buildSynonymIndex(groups map[string][]string) synonymIndex {
	idx := make(synonymIndex)
	for bucket, tags := range groups {
		for _, t := range tags {
			idx[normalizeTag(t)] = bucket
		}
	}
	return idx
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// expand returns the query themes plus every synonym of every bucket they hit.
func (idx synonymIndex) expand(themes []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, th := range themes {
		t := normalizeTag(th)
		if t == "" {
			continue
		}
		out[t] = struct{}{}
		if bucket, ok := idx[t]; ok {
			for _, syn := range themeGroups[bucket] {
				out[normalizeTag(syn)] = struct{}{}
			}
		}
	}
	return out
}

// canonical maps each tag to its bucket name, keeping unknown tags as they are.
func (idx synonymIndex) canonical(tags []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tg := range tags {
		t := normalizeTag(tg)
		if t == "" {
			continue
		}
		if bucket, ok := idx[t]; ok {
			out[bucket] = struct{}{}
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

func tagSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, tg := range tags {
		if t := normalizeTag(tg); t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

// budgetKeywords classify free-text fee info.
var budgetKeywords = map[string][]string{
	"low":  {"무료", "free", "0원"},
	"high": {"20000", "30000", "2만", "3만", "프리미엄", "premium"},
}

func containsAny(s string, kws []string) bool {
	for _, kw := range kws {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// budgetMatch returns how well feeInfo suits the budget level, in [0,1].
func budgetMatch(feeInfo, level string) float64 {
	fee := strings.ToLower(feeInfo)
	low := containsAny(fee, budgetKeywords["low"])
	high := containsAny(fee, budgetKeywords["high"])

	switch strings.ToLower(level) {
	case "low":
		if low {
			return 1.0
		}
		if high {
			return 0.2
		}
		return 0.5
	case "medium":
		if low {
			return 0.7
		}
		if high {
			return 0.5
		}
		return 0.8
	case "high":
		if high {
			return 1.0
		}
		return 0.6
	}
	return 0.5
}
