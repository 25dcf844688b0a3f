// psd-plot renders the Welch power spectral density of a sample window to a
// PNG, optionally after the standard biosignal bandpass and notch. Input is
// one sample per line in µV, as exported by the bridge's debug dump.
//
// Usage:
//
//	psd-plot -in window.txt -rate 256 -out psd.png
//	psd-plot -demo -out psd.png
package main

import (
	"bufio"
	"flag"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/auraloop/mindstate/internal/dsp"
)

var (
	inPath   = flag.String("in", "", "Sample file, one value per line in µV")
	rate     = flag.Float64("rate", 256, "Sample rate in Hz")
	lineFreq = flag.Float64("line", 60, "Mains frequency for the notch, 50 or 60")
	raw      = flag.Bool("raw", false, "Skip the bandpass and notch filters")
	demo     = flag.Bool("demo", false, "Plot a synthetic 10 Hz rhythm with mains interference")
	outPath  = flag.String("out", "psd.png", "Output PNG path")
)

func main() {
	flag.Parse()

	var signal []float64
	switch {
	case *demo:
		signal = demoWindow()
	case *inPath != "":
		var err error
		signal, err = readSamples(*inPath)
		if err != nil {
			log.Fatalf("read %s: %v", *inPath, err)
		}
	default:
		log.Fatal("either -in or -demo is required")
	}
	if len(signal) < 2 {
		log.Fatalf("window too short: %d samples", len(signal))
	}

	if !*raw {
		signal = dsp.NewBiosignalFilter(*rate, *lineFreq).Apply(signal)
	}
	freqs, psd := dsp.WelchPSD(signal, *rate)

	p := plot.New()
	p.Title.Text = "Welch PSD"
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Power (µV²/Hz)"

	pts := make(plotter.XYs, 0, len(freqs))
	for i := range freqs {
		if freqs[i] > 60 {
			break
		}
		pts = append(pts, plotter.XY{X: freqs[i], Y: psd[i]})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		log.Fatalf("build line: %v", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, *outPath); err != nil {
		log.Fatalf("save %s: %v", *outPath, err)
	}
	log.Printf("wrote %s (%d samples, %d bins)", *outPath, len(signal), len(pts))
}

func readSamples(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		samples = append(samples, v)
	}
	return samples, sc.Err()
}

// demoWindow is four seconds of a 20 µV alpha rhythm with mains interference
// and broadband noise-free harmonics, enough to show the notch working.
func demoWindow() []float64 {
	n := int(*rate) * 4
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / *rate
		out[i] = 20*math.Sin(2*math.Pi*10*t) +
			8*math.Sin(2*math.Pi*(*lineFreq)*t) +
			3*math.Sin(2*math.Pi*22*t)
	}
	return out
}
