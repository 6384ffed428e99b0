package downloader

import (
	"bufio"
	"fmt"
	"os"
)

// MergeCookieFiles concatenates the non-comment lines of every file in
// inputFiles into outputFile, prefixed with the standard Netscape cookie
// jar header. Mirrors the source's mergeCookieFiles: workers accumulate
// cookies independently while downloading, and the server folds them all
// back into the canonical file once every worker has stopped.
func MergeCookieFiles(outputFile string, inputFiles ...string) error {
	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("downloader: create %s: %w", outputFile, err)
	}
	defer out.Close()

	if _, err := out.WriteString("# Netscape HTTP Cookie File\n"); err != nil {
		return fmt.Errorf("downloader: write %s: %w", outputFile, err)
	}

	for _, in := range inputFiles {
		if err := appendCookieLines(out, in); err != nil {
			return err
		}
	}
	return nil
}

func appendCookieLines(out *os.File, inputFile string) error {
	f, err := os.Open(inputFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("downloader: open %s: %w", inputFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("downloader: write %s: %w", out.Name(), err)
		}
	}
	return scanner.Err()
}
