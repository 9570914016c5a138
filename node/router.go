package node

import (
	"context"
	"strings"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/logging"
)

// Priority is the fixed tie-break order applied when classification yields
// more than one candidate route, or none. Reproducibility requires that it
// never change at runtime.
var Priority = []core.NodeName{core.NodeRetrieve, core.NodeReason, core.NodeEnrich, core.NodeTerminate}

// Classifier maps a fresh query to candidate routes. It must be a pure
// function of the state: same state, same candidates. The router resolves
// multiple (or zero) candidates through Priority.
type Classifier func(s core.State) []core.NodeName

// RouterOptions configure the router node.
type RouterOptions struct {
	// Classify overrides the default keyword classifier.
	Classify Classifier
	Logger   logging.Logger
}

// Router picks the next node from the current state. It never calls external
// tools, so its decision is deterministic and free to re-run.
type Router struct {
	classify Classifier
	logger   logging.Logger
}

var _ core.Node = (*Router)(nil)

// NewRouter constructs a router with the keyword classifier by default.
func NewRouter(optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{
		Classify: KeywordClassifier,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{classify: opts.Classify, logger: opts.Logger}
}

// Name implements core.Node.
func (r *Router) Name() core.NodeName { return core.NodeRouter }

// Execute implements core.Node.
func (r *Router) Execute(ctx context.Context, s core.State) (core.State, core.NodeName, error) {
	if err := ctx.Err(); err != nil {
		return s, core.NodeTerminate, err
	}
	next := r.decide(s)
	r.logger.Debug("route decided", "next", string(next), "iteration", s.Iterations)
	return s, next, nil
}

// decide applies the routing rules in order: post-answer re-evaluation,
// retrieved-but-unanswered, then fresh-query classification.
func (r *Router) decide(s core.State) core.NodeName {
	if s.Answer != "" {
		if answerRecommends(s.Answer) && len(s.Unenriched()) > 0 {
			return core.NodeEnrich
		}
		return core.NodeTerminate
	}
	if len(s.Items) > 0 {
		return core.NodeReason
	}
	return resolve(r.classify(s), s)
}

// resolve picks the highest-priority candidate. An empty candidate set is
// the ambiguous case and falls through to the priority order over routes
// that can make progress from this state.
func resolve(candidates []core.NodeName, s core.State) core.NodeName {
	want := make(map[core.NodeName]bool, len(candidates))
	for _, c := range candidates {
		want[c] = true
	}
	if len(want) > 0 {
		for _, route := range Priority {
			if want[route] {
				return route
			}
		}
	}
	for _, route := range Priority {
		if applicable(route, s) {
			return route
		}
	}
	return core.NodeTerminate
}

// applicable reports whether a route can make progress from s.
func applicable(route core.NodeName, s core.State) bool {
	switch route {
	case core.NodeRetrieve:
		return s.Query != "" && !visited(s, core.NodeRetrieve)
	case core.NodeReason:
		return s.Answer == ""
	case core.NodeEnrich:
		return len(s.Unenriched()) > 0
	default:
		return true
	}
}

var (
	searchKeywords = []string{
		"suggest", "recommend", "like", "similar", "trending",
		"recent", "new", "what should i watch",
	}
	questionKeywords = []string{
		"what is", "who", "when", "where", "how", "explain", "tell me about",
	}
	greetingKeywords = []string{
		"hello", "hi", "hey", "thanks", "thank you", "bye", "goodbye",
	}
	recommendationPhrases = []string{
		"recommend", "suggest", "check out", "might enjoy", "here are", "similar to",
	}
	conversationalPhrases = []string{
		"i'd be happy", "i'm here to help", "what can i help",
	}
)

// KeywordClassifier is the default query classifier: recommendation phrasing
// selects retrieval, question words and greetings select reasoning. A query
// matching several groups yields several candidates and the priority order
// decides.
func KeywordClassifier(s core.State) []core.NodeName {
	query := strings.ToLower(s.Query)
	var candidates []core.NodeName
	if containsAny(query, searchKeywords) && !visited(s, core.NodeRetrieve) {
		candidates = append(candidates, core.NodeRetrieve)
	}
	if containsAny(query, questionKeywords) || containsAny(query, greetingKeywords) {
		candidates = append(candidates, core.NodeReason)
	}
	return candidates
}

// answerRecommends reports whether the answer text reads as a set of
// recommendations worth enriching, rather than an explanation or greeting.
func answerRecommends(answer string) bool {
	lower := strings.ToLower(answer)
	return containsAny(lower, recommendationPhrases) && !containsAny(lower, conversationalPhrases)
}

func visited(s core.State, n core.NodeName) bool {
	for _, v := range s.Visited {
		if v == n {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
