package reporter

import (
	"fmt"
	"io"
	"slices"

	"github.com/utxob/Data-Recover-toll/utils"
)

type Reporter struct {
	Log         *Log
	ShowSkipped bool
}

// Show writes one line per result, skipped results only when asked for.
func (rp Reporter) Show(w io.Writer) error {
	for result := range rp.Log.All() {
		if result.Status == StatusSkipped && !rp.ShowSkipped {
			continue
		}
		if _, err := fmt.Fprintln(w, result); err != nil {
			return err
		}
	}
	return nil
}

// Summary writes the counts per status and per source method.
func (rp Reporter) Summary(w io.Writer) error {
	counts := rp.Log.Counts()
	printer := utils.NewPrinter()

	if _, err := printer.Fprintf(w, "%d candidates considered, %d bytes recovered\n", counts.Total, counts.Bytes); err != nil {
		return err
	}
	for _, status := range []Status{StatusSuccess, StatusPartial, StatusFailed, StatusSkipped} {
		if _, err := printer.Fprintf(w, "  %-8s %d\n", status, counts.ByStatus[status]); err != nil {
			return err
		}
	}
	methods := make([]Method, 0, len(counts.ByMethod))
	for method := range counts.ByMethod {
		methods = append(methods, method)
	}
	slices.Sort(methods)
	for _, method := range methods {
		if _, err := printer.Fprintf(w, "  %-8s %d\n", method, counts.ByMethod[method]); err != nil {
			return err
		}
	}
	return nil
}
