package transform

import "strconv"

func arrayPath(msgIdx, contentIdx int) string {
	return "messages." + strconv.Itoa(msgIdx) + ".content." + strconv.Itoa(contentIdx)
}
