/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pluginfilter

// Similarity computes the Ratcliff/Obershelp similarity ratio of two
// strings: twice the number of matching characters divided by the total
// number of characters. Matching characters are found in the longest
// common substring plus, recursively, in the unmatched regions on either
// side of it. The ratio is 1 for equal strings and 0 for fully distinct
// ones.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	matches := matchingRunes(ra, rb)
	return 2 * float64(matches) / float64(total)
}

func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	aStart, bStart, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingRunes(a[:aStart], b[:bStart]) +
		matchingRunes(a[aStart+size:], b[bStart+size:])
}

// longestCommonSubstring finds the longest run of runes present in both
// inputs, preferring the earliest occurrence like difflib's
// SequenceMatcher.
func longestCommonSubstring(a, b []rune) (aStart, bStart, size int) {
	// lengths[j] is the length of the common suffix ending at a[i], b[j]
	// for the current row i.
	lengths := make([]int, len(b)+1)
	for i := range a {
		// Walk b backwards so lengths[j] still holds row i-1 values.
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] != b[j] {
				lengths[j+1] = 0
				continue
			}
			lengths[j+1] = lengths[j] + 1
			if lengths[j+1] > size {
				size = lengths[j+1]
				aStart = i - size + 1
				bStart = j - size + 1
			}
		}
	}
	return aStart, bStart, size
}
