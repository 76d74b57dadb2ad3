package match

import (
	"math"
	"strings"
	"testing"
)

func TestScore_EmptyInputs(t *testing.T) {
	cases := []struct {
		name   string
		resume string
		job    string
	}{
		{"both empty", "", ""},
		{"empty resume", "", "Python developer"},
		{"empty job", "Python developer with 5 years", ""},
		{"stop words only", "the and of with", "from into over"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Score(tc.resume, tc.job)
			if r.Score != 0 {
				t.Fatalf("expected zero score, got %v", r.Score)
			}
			if len(r.MatchedTerms) != 0 || len(r.MissingTerms) != 0 {
				t.Fatalf("expected empty term sets, got %v / %v", r.MatchedTerms, r.MissingTerms)
			}
			if r.KeywordCoverage != 0 {
				t.Fatalf("expected zero coverage, got %v", r.KeywordCoverage)
			}
			if r.Experience != ExperienceNotSpecified {
				t.Fatalf("expected %q, got %q", ExperienceNotSpecified, r.Experience)
			}
		})
	}
}

func TestScore_RangeAndDisjointSets(t *testing.T) {
	resume := "Senior engineer skilled in Go, Kubernetes and PostgreSQL. 3 years backend work."
	job := "Looking for a Go engineer with Kubernetes, Terraform and AWS knowledge."

	r := Score(resume, job)
	if r.Score < 0 || r.Score > 100 {
		t.Fatalf("score out of range: %v", r.Score)
	}

	matched := map[string]bool{}
	for _, term := range r.MatchedTerms {
		matched[term] = true
	}
	for _, term := range r.MissingTerms {
		if matched[term] {
			t.Fatalf("term %q is both matched and missing", term)
		}
	}
}

func TestScore_EndToEnd(t *testing.T) {
	r := Score("Python Java SQL", "Python SQL AWS")

	if r.Score <= 0 {
		t.Fatalf("expected positive score, got %v", r.Score)
	}
	wantMatched := []string{"python", "sql"}
	for _, term := range wantMatched {
		if !contains(r.MatchedTerms, term) {
			t.Fatalf("matched terms %v missing %q", r.MatchedTerms, term)
		}
	}
	if !contains(r.MissingTerms, "aws") {
		t.Fatalf("missing terms %v should contain aws", r.MissingTerms)
	}
	if contains(r.MissingTerms, "java") {
		t.Fatalf("java is not in the job text, should be ignored: %v", r.MissingTerms)
	}

	// 2 matched of 3 job-relevant terms.
	if math.Abs(r.KeywordCoverage-200.0/3.0) > 1e-9 {
		t.Fatalf("expected coverage %.4f, got %v", 200.0/3.0, r.KeywordCoverage)
	}
}

func TestScore_IdenticalTexts(t *testing.T) {
	text := "golang postgres docker grpc"
	r := Score(text, text)
	if math.Abs(r.Score-100) > 1e-9 {
		t.Fatalf("identical texts should score 100, got %v", r.Score)
	}
	if len(r.MissingTerms) != 0 {
		t.Fatalf("identical texts should have no missing terms: %v", r.MissingTerms)
	}
	if r.KeywordCoverage != 100 {
		t.Fatalf("expected full coverage, got %v", r.KeywordCoverage)
	}
}

func TestScore_TermOrderStable(t *testing.T) {
	resume := "zookeeper airflow beam cassandra druid elastic flink"
	job := "airflow beam cassandra druid elastic flink zookeeper hadoop"
	first := Score(resume, job)
	second := Score(resume, job)
	if strings.Join(first.MatchedTerms, ",") != strings.Join(second.MatchedTerms, ",") {
		t.Fatalf("matched term order not stable: %v vs %v", first.MatchedTerms, second.MatchedTerms)
	}
}

func TestExtractExperience(t *testing.T) {
	cases := []struct {
		name   string
		resume string
		want   string
	}{
		{"sums years and yrs", "5 years of experience and 2 yrs internship", "7 years"},
		{"no pattern", "experienced engineer, many projects", ExperienceNotSpecified},
		{"singular year", "1 year at a startup", "1 years"},
		{"case insensitive", "4 YEARS in platform teams", "4 years"},
		{"overcounts unrelated mentions", "3 year warranty plus 2 years of support work", "5 years"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractExperience(tc.resume); got != tc.want {
				t.Fatalf("extractExperience(%q) = %q, want %q", tc.resume, got, tc.want)
			}
		})
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
