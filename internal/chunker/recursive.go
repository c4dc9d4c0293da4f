package chunker

import "strings"

// Recursive packs paragraphs into chunks up to Size characters, splitting an
// oversized paragraph by sentence and only then falling back to the fixed
// cut. Produces more natural chunk boundaries than Fixed on prose at the
// cost of more variance in chunk length.
type Recursive struct {
	Size    int
	Overlap int
}

func (r *Recursive) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var pieces []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len([]rune(para)) <= r.Size {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, r.splitOversized(para)...)
	}
	return packPieces(pieces, r.Size)
}

func (r *Recursive) splitOversized(para string) []string {
	sentences := splitSentences(para)
	fixed := Fixed{Size: r.Size, Overlap: r.Overlap}
	var out []string
	for _, s := range sentences {
		if len([]rune(s)) <= r.Size {
			out = append(out, s)
		} else {
			out = append(out, fixed.Split(s)...)
		}
	}
	return out
}

// packPieces greedily merges adjacent pieces while they fit in one chunk.
func packPieces(pieces []string, size int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, p := range pieces {
		pLen := len([]rune(p))
		if curLen > 0 && curLen+pLen+1 > size {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString("\n")
			curLen++
		}
		cur.WriteString(p)
		curLen += pLen
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				sent := strings.TrimSpace(string(runes[start : i+1]))
				if sent != "" {
					out = append(out, sent)
				}
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}
