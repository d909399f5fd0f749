// Package plot renders the evaluation charts as PNG files.
package plot

import (
	"fmt"
	"os"

	chart "github.com/wcharczuk/go-chart"
	"github.com/wcharczuk/go-chart/drawing"
)

// ROC draws a single ROC curve with a chance diagonal.
func ROC(path string, fpr, tpr []float64, label string) error {
	graph := chart.Chart{
		Title:      "ROC",
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      "False Positive Rate",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     &chart.ContinuousRange{Min: 0, Max: 1},
		},
		YAxis: chart.YAxis{
			Name:      "True Positive Rate",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    label,
				XValues: fpr,
				YValues: tpr,
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.ColorBlue,
					DotColor:    chart.ColorBlue,
					DotWidth:    3,
				},
			},
			chart.ContinuousSeries{
				Name:    "chance",
				XValues: []float64{0, 1},
				YValues: []float64{0, 1},
				Style: chart.Style{
					Show:            true,
					StrokeColor:     chart.ColorLightGray,
					StrokeDashArray: []float64{5, 5},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}
	return render(path, &graph)
}

// Scatter draws one dot per point, coloured by binary label.
func Scatter(path, title string, points [][2]float64, labels []int) error {
	if len(points) != len(labels) {
		return fmt.Errorf("plot: %d points for %d labels", len(points), len(labels))
	}

	names := []string{"Benign", "Malignant"}
	colors := []drawing.Color{chart.ColorBlue, chart.ColorOrange}
	var series []chart.Series
	for class := range names {
		var xs, ys []float64
		for i, p := range points {
			if labels[i] == class {
				xs = append(xs, p[0])
				ys = append(ys, p[1])
			}
		}
		if len(xs) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    names[class],
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				Show:        true,
				StrokeWidth: chart.Disabled,
				DotColor:    colors[class],
				DotWidth:    3,
			},
		})
	}

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.StyleShow(),
		Width:      1000,
		Height:     800,
		XAxis: chart.XAxis{
			Name:      "t-SNE Dimension 1",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      "t-SNE Dimension 2",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}
	return render(path, &graph)
}

// Embedding runs t-SNE over features and scatters the result.
func Embedding(path string, features [][]float32, labels []int, cfg TSNEConfig) error {
	x := make([][]float64, len(features))
	for i, f := range features {
		x[i] = make([]float64, len(f))
		for j, v := range f {
			x[i][j] = float64(v)
		}
	}
	return Scatter(path, "t-SNE Plot of Embedding Values", TSNE(x, cfg), labels)
}

func render(path string, graph *chart.Chart) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	if err := graph.Render(chart.PNG, f); err != nil {
		f.Close()
		return fmt.Errorf("plot: render %s: %w", path, err)
	}
	return f.Close()
}
