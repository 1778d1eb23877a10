package reconcile

import "strings"

// indexPair maps a token index in the first transcript to the corresponding
// index in the second.
type indexPair struct {
	aIdx int
	bIdx int
}

// region is a contiguous run of tokens that differs between the two
// transcripts. Either side may be empty (an insertion or omission).
type region struct {
	aTokens []string
	bTokens []string
}

// tokenize splits transcript text into comparable units. Tokens are
// whitespace-delimited and compared exactly: a casing or punctuation
// difference between the two engines is a genuine divergence the merge model
// should see.
func tokenize(text string) []string {
	return strings.Fields(text)
}

// tokenLCS computes the longest common subsequence of two token slices and
// returns anchor pairs (indices into a and b) representing common tokens in
// order. Standard O(m×n) DP — dictations are a few thousand tokens at most.
func tokenLCS(a, b []string) []indexPair {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	lcsLen := dp[m][n]
	if lcsLen == 0 {
		return nil
	}

	anchors := make([]indexPair, lcsLen)
	i, j, k := m, n, lcsLen-1
	for i > 0 && j > 0 {
		if a[i-1] == b[j-1] {
			anchors[k] = indexPair{aIdx: i - 1, bIdx: j - 1}
			i--
			j--
			k--
		} else if dp[i-1][j] >= dp[i][j-1] {
			i--
		} else {
			j--
		}
	}
	return anchors
}

// diffRegions walks the anchor list and collects the gaps between anchored
// (matching) tokens. Each gap is a region where the transcripts diverge.
func diffRegions(a, b []string, anchors []indexPair) []region {
	var regions []region
	ai, bi := 0, 0
	for _, anc := range anchors {
		if ai < anc.aIdx || bi < anc.bIdx {
			regions = append(regions, region{
				aTokens: a[ai:anc.aIdx],
				bTokens: b[bi:anc.bIdx],
			})
		}
		ai = anc.aIdx + 1
		bi = anc.bIdx + 1
	}
	if ai < len(a) || bi < len(b) {
		regions = append(regions, region{
			aTokens: a[ai:],
			bTokens: b[bi:],
		})
	}
	return regions
}

// markedText renders the aligned transcripts as a single string in which
// every divergent region appears twice, each variant wrapped in paired
// markers naming its provider:
//
//	Heart rate [[whisperx]]80[[/whisperx]][[openai]]90[[/openai]] regular
//
// Matching runs appear once, unmarked.
func markedText(a, b []string, anchors []indexPair, providerA, providerB string) string {
	var sb strings.Builder

	writeRegion := func(aTok, bTok []string) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("[[" + providerA + "]]")
		sb.WriteString(strings.Join(aTok, " "))
		sb.WriteString("[[/" + providerA + "]]")
		sb.WriteString("[[" + providerB + "]]")
		sb.WriteString(strings.Join(bTok, " "))
		sb.WriteString("[[/" + providerB + "]]")
	}
	writeAnchor := func(tok string) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}

	ai, bi := 0, 0
	for _, anc := range anchors {
		if ai < anc.aIdx || bi < anc.bIdx {
			writeRegion(a[ai:anc.aIdx], b[bi:anc.bIdx])
		}
		writeAnchor(a[anc.aIdx])
		ai = anc.aIdx + 1
		bi = anc.bIdx + 1
	}
	if ai < len(a) || bi < len(b) {
		writeRegion(a[ai:], b[bi:])
	}
	return sb.String()
}
