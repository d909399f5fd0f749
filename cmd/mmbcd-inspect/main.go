package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"

	"github.com/menta2k/mmbcd"
	"github.com/menta2k/mmbcd/internal/config"
	"github.com/menta2k/mmbcd/internal/utils"
	"github.com/menta2k/mmbcd/pkg/dataset"
	"github.com/menta2k/mmbcd/pkg/processing"
	"github.com/menta2k/mmbcd/pkg/screening"
)

type args struct {
	Config    string `arg:"-c,--config" help:"JSON configuration file"`
	CSV       string `arg:"--csv" help:"table with im_path, text, cancer and all_views_cancer columns"`
	ImageBase string `arg:"--img-base" help:"directory the image paths are relative to"`
	TextBase  string `arg:"--text-base" help:"directory holding the *_preds.txt proposal files"`
	TopK      int    `arg:"--topk" help:"proposals per image"`
	Out       string `arg:"-o,--out" help:"output directory" default:"inspect"`
	Index     []int  `arg:"-i,--index" help:"sample indices to render (default: the first --limit)"`
	Limit     int    `arg:"-n,--limit" help:"number of samples when no index is given" default:"10"`
	Ext       string `arg:"--ext" help:"output format: png|jpg|webp" default:"png"`
	Quality   int    `arg:"--quality" help:"JPEG/WebP quality (1-100)" default:"92"`
	Thickness int    `arg:"--thickness" help:"box outline width in pixels" default:"3"`
	Assess    bool   `arg:"--assess" help:"grade each mosaic with the vision LLM backend"`
	Test      bool   `arg:"--test-vision" help:"check that the vision model sees the first overlay"`
}

func (args) Description() string {
	return "Renders selected proposals, crop mosaics and prompts of a mammography table."
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg := config.Default()
	if a.Config != "" {
		var err error
		if cfg, err = config.LoadFromFile(a.Config); err != nil {
			log.Fatal(err)
		}
	}
	if a.CSV != "" {
		cfg.Dataset.CSVPath = a.CSV
	}
	if a.ImageBase != "" {
		cfg.Dataset.ImageBaseDir = a.ImageBase
	}
	if a.TextBase != "" {
		cfg.Dataset.TextBaseDir = a.TextBase
	}
	if a.TopK != 0 {
		cfg.Dataset.TopK = a.TopK
	}
	if cfg.Dataset.CSVPath == "" {
		log.Fatalf("usage: %s --csv table.csv --img-base images --text-base proposals [-o outdir]", filepath.Base(os.Args[0]))
	}
	if err := utils.EnsureDir(a.Out); err != nil {
		log.Fatal(err)
	}

	ds, err := dataset.New(mmbcd.DatasetConfig(cfg), rand.New(rand.NewSource(cfg.Dataset.Seed)),
		dataset.WithLogger(log.Default()))
	if err != nil {
		log.Fatal(err)
	}
	ds.Summary(os.Stdout)

	indices := a.Index
	if len(indices) == 0 {
		for i := 0; i < a.Limit && i < ds.Len(); i++ {
			indices = append(indices, i)
		}
	}

	var screener *screening.Screener
	if a.Assess || a.Test {
		if cfg.Model.Backend == config.BackendONNX {
			log.Fatalf("--assess and --test-vision need the ollama or llamacpp backend")
		}
		clf, err := mmbcd.NewClassifier(cfg, ds.Cropper(), log.Default())
		if err != nil {
			log.Fatal(err)
		}
		screener = clf.(*screening.Screener)
	}

	processor := processing.NewProcessor()
	ctx := context.Background()
	var prompts []string
	for n, i := range indices {
		if i < 0 || i >= ds.Len() {
			log.Printf("skipping index %d: out of range", i)
			continue
		}
		img, err := ds.Image(i)
		if err != nil {
			log.Printf("sample %d: %v", i, err)
			continue
		}
		props := ds.Proposals(i)
		sample := ds.Sample(i)

		overlay := processor.ProposalOverlay(img, props, a.Thickness)
		overlayPath := utils.GenerateOutputFilename(sample.ImagePath, a.Out, fmt.Sprintf("%03d_", i), "_proposals", a.Ext)
		if err := processor.SaveImage(overlay, overlayPath, a.Ext, a.Quality, false); err != nil {
			log.Printf("save %s failed: %v", overlayPath, err)
		} else {
			log.Printf("wrote %s", overlayPath)
		}

		crops, err := ds.Cropper().Crops(img, props)
		if err != nil {
			log.Printf("sample %d: %v", i, err)
			continue
		}
		images := make([]image.Image, len(crops))
		for j, c := range crops {
			images[j] = c
		}
		mosaicPath := utils.GenerateOutputFilename(sample.ImagePath, a.Out, fmt.Sprintf("%03d_", i), "_crops", a.Ext)
		if err := processor.SaveImage(processor.Mosaic(images), mosaicPath, a.Ext, a.Quality, false); err != nil {
			log.Printf("save %s failed: %v", mosaicPath, err)
		} else {
			log.Printf("wrote %s", mosaicPath)
		}

		prompts = append(prompts, fmt.Sprintf("%d\t%d\t%s\t%s", i, sample.Label, sample.ImagePath, ds.Prompt(i)))

		if screener == nil {
			continue
		}
		if a.Test && n == 0 {
			b64, err := processor.EncodeBase64(overlay, "jpg", 1536, 85)
			if err != nil {
				log.Fatal(err)
			}
			answer, err := screener.TestVision(ctx, b64)
			if err != nil {
				log.Fatalf("vision test failed: %v", err)
			}
			log.Printf("vision test: %s", answer)
		}
		if a.Assess {
			res, err := screener.Assess(ctx, images, ds.Prompt(i))
			if err != nil {
				log.Printf("sample %d: assessment failed: %v", i, err)
				continue
			}
			log.Printf("sample %d: label=%d malignancy=%.2f finding=%q tags=%v", i, sample.Label, res.Malignancy, res.Finding, res.Tags)
		}
	}

	promptPath := filepath.Join(a.Out, "prompts.tsv")
	if err := os.WriteFile(promptPath, []byte(strings.Join(prompts, "\n")+"\n"), 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s", promptPath)
}
