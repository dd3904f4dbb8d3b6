package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"shapeletfit/internal/models"
	"shapeletfit/pkg/coeffio"
	"shapeletfit/pkg/config"
	"shapeletfit/pkg/decomp"
	"shapeletfit/pkg/imageio"
	"shapeletfit/pkg/noise"
	"shapeletfit/pkg/visualization"
	"shapeletfit/pkg/wcs"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file (flags override it)")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	region := flag.String("region", "", "Region of image to decompose into shapelets, (ymin,ymax,xmin,xmax)")
	noiseRegion := flag.String("noise-region", "", "Region of image used to estimate the noise, (ymin,ymax,xmin,xmax); default: sigma-clip the whole cutout")
	nmax := flag.String("nmax", "5", "Model order for the minimization fit, one value or two as 'n1,n2'")
	brute := flag.Int("brute", 15, "Maximum number of terms per axis tried by the brute force order search")
	beta := flag.Float64("beta", 0, "Initial beta value; 0 guesses it from the image moments")
	outFile := flag.String("out", "tempCart.coeff", "Coefficients output filename")
	xtol := flag.Float64("xtol", 1e-4, "Relative error in parameters acceptable for convergence")
	ftol := flag.Float64("ftol", 1e-4, "Relative error in chi^2 acceptable for convergence")
	maxIter := flag.Int("maxiter", 250, "Maximum number of iterations to perform")
	frac := flag.Float64("frac", 0, "Fractional radius of the image to fit the centroid within; 0 leaves it free")
	maxPos := flag.Bool("max", false, "Use the position of maximum intensity as the initial centroid")
	header := flag.String("header", "", "WCS header sidecar (default: <image>.wcs.yaml when present)")
	plotFile := flag.String("plot", "", "Save the image/model/residual/coefficient panel to this PNG")
	modelFile := flag.String("model", "", "Save the reconstructed model image (PNG or TIFF)")
	workers := flag.Int("workers", 0, "Concurrent evaluations in the order search (default: all cores)")
	quiet := flag.Bool("quiet", false, "Only print the final result")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *initConfig)
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] IMAGE\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(1)
	}
	imagePath := flag.Arg(0)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Explicit flags take precedence over the configuration file
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "region":
			cfg.Input.Region = *region
		case "noise-region":
			cfg.Input.NoiseRegion = *noiseRegion
		case "header":
			cfg.Input.Header = *header
		case "nmax":
			n, err := parseOrder(*nmax)
			if err != nil {
				flagErr = err
			}
			cfg.Fit.NMax = n
		case "brute":
			cfg.Fit.Brute = *brute
		case "beta":
			cfg.Fit.Beta = *beta
		case "xtol":
			cfg.Fit.XTol = *xtol
		case "ftol":
			cfg.Fit.FTol = *ftol
		case "maxiter":
			cfg.Fit.MaxIterations = *maxIter
		case "frac":
			cfg.Fit.CentroidRadius = *frac
		case "max":
			cfg.Fit.MaxPosition = *maxPos
		case "workers":
			cfg.Fit.Workers = resolveWorkers(*workers)
		case "out":
			cfg.Output.CoeffFile = *outFile
		case "plot":
			cfg.Output.PlotFile = *plotFile
		case "model":
			cfg.Output.ModelFile = *modelFile
		case "quiet":
			cfg.Output.Verbose = !*quiet
		}
	})
	if flagErr != nil {
		log.Fatalf("Invalid -nmax: %v", flagErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	if err := run(imagePath, cfg); err != nil {
		log.Fatalf("Decomposition failed: %v", err)
	}
}

// run loads the image, fits it and writes the outputs described by cfg
func run(imagePath string, cfg *config.Config) error {
	cutRegion, nRegion, err := cfg.Regions()
	if err != nil {
		return err
	}

	full, err := imageio.Load(imagePath)
	if err != nil {
		return err
	}
	img := full
	var offset models.Centroid
	if cutRegion != nil {
		if img, err = imageio.SelectRegion(full, *cutRegion); err != nil {
			return err
		}
		offset = models.Centroid{Row: float64(cutRegion.RowMin), Col: float64(cutRegion.ColMin)}
	}

	// Noise map
	var nm *models.Image
	if nRegion == nil {
		nm, err = noise.EstimateMap(img, nil, cfg.Noise)
	} else {
		nm, err = noise.EstimateMap(full, nRegion, cfg.Noise)
		if err == nil && cutRegion != nil {
			nm, err = imageio.SelectRegion(nm, *cutRegion)
		}
	}
	if err != nil {
		return fmt.Errorf("noise estimation: %w", err)
	}

	fitter, err := decomp.NewFitter(cfg.FitOptions())
	if err != nil {
		return err
	}
	if cfg.Output.Verbose {
		fitter.SetLogger(log.New(os.Stdout, "", 0))
	}

	startTime := time.Now()
	res, err := fitter.Fit(img, nm)
	if err != nil {
		return err
	}
	elapsed := time.Since(startTime)

	for _, w := range res.Warnings {
		log.Printf("Warning: %s", w)
	}

	fmt.Printf("\nbeta: (%f,%f)\tcentroid: (%f,%f)\tn_max: %v\tchi2: %g\n",
		res.Scale.Row, res.Scale.Col, res.Centroid.Row, res.Centroid.Col, res.Order, res.ChiSquared)
	fmt.Printf("Fit completed in %.2f seconds (%d iterations, %d evaluations)\n",
		elapsed.Seconds(), res.Iterations, res.FuncEvaluations)

	rec := coeffio.FromResult(res, img.Rows, img.Cols, imagePath)

	// Sky position, when a header is available
	headerPath := cfg.Input.Header
	if headerPath == "" {
		if _, err := os.Stat(wcs.SidecarPath(imagePath)); err == nil {
			headerPath = wcs.SidecarPath(imagePath)
		}
	}
	if headerPath != "" {
		h, err := wcs.LoadHeader(headerPath)
		if err != nil {
			return err
		}
		pos := wcs.PixelToSky(res.Centroid, h, offset)
		size := wcs.ScaleToSize(res.Scale, h)
		fmt.Printf("RA: %f\t DEC: %f\t BETA: (%f,%f)\n", pos.RA, pos.Dec, size.Row, size.Col)
		rec.Position = &coeffio.Position{RA: pos.RA, Dec: pos.Dec, SizeRow: size.Row, SizeCol: size.Col}
	}

	fmt.Printf("Writing to file: %s\n", cfg.Output.CoeffFile)
	if err := coeffio.Write(cfg.Output.CoeffFile, rec); err != nil {
		return err
	}

	if cfg.Output.PlotFile != "" {
		fmt.Printf("Saving diagnostic panel to: %s\n", cfg.Output.PlotFile)
		if err := visualization.SavePanel(cfg.Output.PlotFile, visualization.NewPanel(img, res)); err != nil {
			log.Printf("Warning: Failed to save panel: %v", err)
		}
	}
	if cfg.Output.ModelFile != "" {
		fmt.Printf("Saving model image to: %s\n", cfg.Output.ModelFile)
		if err := imageio.Save(cfg.Output.ModelFile, res.Model); err != nil {
			log.Printf("Warning: Failed to save model: %v", err)
		}
	}
	return nil
}

// resolveWorkers maps a non-positive worker count to all cores
func resolveWorkers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// parseOrder reads "n" or "n1,n2"
func parseOrder(s string) ([2]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return [2]int{}, fmt.Errorf("expected one or two values, got %q", s)
	}
	var n [2]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return [2]int{}, err
		}
		n[i] = v
	}
	if len(parts) == 1 {
		n[1] = n[0]
	}
	return n, nil
}
