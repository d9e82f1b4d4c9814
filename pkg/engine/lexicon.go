package engine

// Fixed word sets for topic extraction and the lexicon sentiment count.
// Deliberately small: the analyzer is a cheap heuristic, not NLP.

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {},
	"of": {}, "in": {}, "on": {}, "for": {}, "with": {}, "is": {},
	"are": {}, "was": {}, "were": {}, "i": {}, "you": {}, "he": {},
	"she": {}, "they": {}, "we": {}, "it": {}, "this": {}, "that": {},
	"these": {}, "those": {},
}

var positiveWords = []string{
	"great", "nice", "awesome", "good", "love", "like", "fun", "happy",
}

var negativeWords = []string{
	"bad", "boring", "awkward", "sad", "angry", "hate", "tired",
}
