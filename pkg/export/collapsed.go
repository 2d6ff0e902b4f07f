package export

import (
	"bufio"
	"io"
	"strconv"

	"github.com/danpilch/pathprof/pkg/aggregate"
)

// WriteCollapsed writes one "a;b;c <self ns>" line per record, in record order.
func WriteCollapsed(w io.Writer, names Names, recs []aggregate.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range recs {
		bw.WriteString(Stack(names, r.Path))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatInt(r.Total, 10))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
