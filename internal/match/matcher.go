package match

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Result 表示一次简历与职位描述的匹配结果。
type Result struct {
	Score           float64  `json:"score"`
	MatchedTerms    []string `json:"matched_terms"`
	MissingTerms    []string `json:"missing_terms"`
	KeywordCoverage float64  `json:"keyword_coverage"`
	Experience      string   `json:"experience"`
}

// ExperienceNotSpecified 是未能从简历中提取到年限时的展示值。
const ExperienceNotSpecified = "not specified"

var experiencePattern = regexp.MustCompile(`(?i)(\d+)\s*(?:year|yr)s?`)

// Score 计算简历文本与职位描述文本的词法相似度。
//
// 两份文本构成完整的语料库：IDF 在且仅在这两份文档上计算。权重为
// 平滑 IDF（ln((1+n)/(1+df))+1，n=2）乘以词频，并按文档做 L2 归一化，
// 因此余弦相似度退化为点积。得分为 [0,100]。
//
// 纯函数；任意一侧为空或分不出词元时返回零值结果而非错误。
func Score(resumeText, jobText string) Result {
	zero := Result{
		MatchedTerms: []string{},
		MissingTerms: []string{},
		Experience:   ExperienceNotSpecified,
	}

	resumeTF := termFrequencies(resumeText)
	jobTF := termFrequencies(jobText)
	if len(resumeTF) == 0 || len(jobTF) == 0 {
		return zero
	}

	vocab := make([]string, 0, len(resumeTF)+len(jobTF))
	seen := make(map[string]struct{}, len(resumeTF)+len(jobTF))
	for term := range resumeTF {
		if _, ok := seen[term]; !ok {
			seen[term] = struct{}{}
			vocab = append(vocab, term)
		}
	}
	for term := range jobTF {
		if _, ok := seen[term]; !ok {
			seen[term] = struct{}{}
			vocab = append(vocab, term)
		}
	}
	// 词序在单次调用内保持稳定，便于展示层做前 20 截断。
	sort.Strings(vocab)

	resumeVec := weigh(vocab, resumeTF, jobTF)
	jobVec := weigh(vocab, jobTF, resumeTF)

	var dot float64
	for i := range vocab {
		dot += resumeVec[i] * jobVec[i]
	}
	// 权重非负时余弦不可能为负；保留下限钳制以防权重方案更换。
	score := math.Max(0, dot) * 100

	matched := make([]string, 0)
	missing := make([]string, 0)
	for i, term := range vocab {
		switch {
		case resumeVec[i] > 0 && jobVec[i] > 0:
			matched = append(matched, term)
		case resumeVec[i] == 0 && jobVec[i] > 0:
			missing = append(missing, term)
		}
	}

	coverage := 0.0
	if total := len(matched) + len(missing); total > 0 {
		coverage = float64(len(matched)) / float64(total) * 100
	}

	return Result{
		Score:           score,
		MatchedTerms:    matched,
		MissingTerms:    missing,
		KeywordCoverage: coverage,
		Experience:      extractExperience(resumeText),
	}
}

// termFrequencies 将文本切分为小写词元并统计词频。
// 词元为长度 >= 2 的字母/数字/下划线连续串，停用词被剔除。
func termFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	var word strings.Builder
	flush := func() {
		w := word.String()
		word.Reset()
		if len(w) < 2 || stopWords[w] {
			return
		}
		tf[w]++
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tf
}

// weigh 计算一份文档在给定词表下的 L2 归一化 TF-IDF 向量。
func weigh(vocab []string, tf, otherTF map[string]int) []float64 {
	vec := make([]float64, len(vocab))
	var norm float64
	for i, term := range vocab {
		count := tf[term]
		if count == 0 {
			continue
		}
		df := 1
		if otherTF[term] > 0 {
			df = 2
		}
		idf := math.Log(3.0/float64(1+df)) + 1
		vec[i] = float64(count) * idf
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// extractExperience 提取简历中的工作年限。
// 有意保留朴素行为：累加所有“数字+year/yr”出现的数值，找不到则报 not specified。
func extractExperience(resumeText string) string {
	matches := experiencePattern.FindAllStringSubmatch(resumeText, -1)
	if len(matches) == 0 {
		return ExperienceNotSpecified
	}
	total := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += n
	}
	return strconv.Itoa(total) + " years"
}
