package scanrx

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/astrotrace/scanrx/dsp"
)

// LoadCSVChannels reads a semicolon-separated channel list:
//
//	freq_hz;name;mode;bandwidth_hz;squelch_db
//
// Lines starting with '#' are comments. Fields past freq_hz are optional;
// empty fields take the scan defaults.
func LoadCSVChannels(path string) ([]ChannelConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: channel csv: %v", ErrConfig, err)
	}
	var chans []ChannelConfig
	for lineno, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := parseCSVChannel(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrConfig, path, lineno+1, err)
		}
		chans = append(chans, c)
	}
	return chans, nil
}

func parseCSVChannel(line string) (ChannelConfig, error) {
	var c ChannelConfig
	fields := strings.Split(line, ";")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	freq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return c, fmt.Errorf("bad frequency %q", fields[0])
	}
	c.FreqHz = freq
	if len(fields) > 1 {
		c.Name = fields[1]
	}
	if len(fields) > 2 && fields[2] != "" {
		mode, err := dsp.ParseMode(fields[2])
		if err != nil {
			return c, err
		}
		c.Mode = mode
	}
	if len(fields) > 3 && fields[3] != "" {
		bw, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return c, fmt.Errorf("bad bandwidth %q", fields[3])
		}
		c.BandwidthHz = bw
	}
	if len(fields) > 4 && fields[4] != "" {
		sq, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return c, fmt.Errorf("bad squelch %q", fields[4])
		}
		c.SquelchDB = sq
	}
	return c, nil
}
