package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"vmboot/kernel/mm/vmm"
)

const (
	rowHeight  = 40
	rowSpacing = 16
	margin     = 24
	labelWidth = 360
	minBarLen  = 3
)

// layoutRegion describes a virtual address range reserved by the kernel.
type layoutRegion struct {
	name       string
	start, end uintptr
	fill       color.RGBA
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[vmlayout] error: %s\n", err.Error())
	os.Exit(1)
}

// kernelLayout returns the fixed regions of the kernel address space in
// ascending order.
func kernelLayout() []layoutRegion {
	return []layoutRegion{
		{"heap", vmm.HeapStart, vmm.HeapStart + uintptr(vmm.HeapSize), color.RGBA{R: 0x3c, G: 0x9d, B: 0x5d, A: 0xff}},
		{"guarded stacks", vmm.StackRegionStart, vmm.StackRegionEnd, color.RGBA{R: 0x2f, G: 0x6f, B: 0xb5, A: 0xff}},
		{"physical windows", vmm.PhysWindowRegionStart, vmm.PhysWindowRegionEnd, color.RGBA{R: 0xd0, G: 0x7b, B: 0x2c, A: 0xff}},
	}
}

// validateLayout checks that the regions are non-empty, sorted and disjoint.
func validateLayout(regions []layoutRegion) error {
	for i, region := range regions {
		if region.end <= region.start {
			return fmt.Errorf("region %q is empty", region.name)
		}

		if i > 0 && region.start < regions[i-1].end {
			return fmt.Errorf("region %q overlaps region %q", region.name, regions[i-1].name)
		}
	}

	return nil
}

// renderLayout draws one row per region. The bar of each row is placed on a
// linear scale spanning the whole layout; bars too small to see are widened
// to minBarLen pixels.
func renderLayout(regions []layoutRegion, width int) (*gg.Context, error) {
	if len(regions) == 0 {
		return nil, errors.New("nothing to render")
	}

	if width <= labelWidth+2*margin {
		return nil, fmt.Errorf("width must be larger than %d", labelWidth+2*margin)
	}

	var (
		height   = 2*margin + len(regions)*(rowHeight+rowSpacing)
		dc       = gg.NewContext(width, height)
		spanLo   = regions[0].start
		spanHi   = regions[len(regions)-1].end
		barSpace = float64(width - labelWidth - 2*margin)
		scale    = barSpace / float64(spanHi-spanLo)
	)

	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	for i, region := range regions {
		y := float64(margin + i*(rowHeight+rowSpacing))

		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(region.name, margin, y+rowHeight/3, 0, 0.5)
		dc.DrawStringAnchored(fmt.Sprintf("0x%016x - 0x%016x", region.start, region.end), margin, y+2*rowHeight/3, 0, 0.5)

		x := float64(margin+labelWidth) + float64(region.start-spanLo)*scale
		barLen := float64(region.end-region.start) * scale
		if barLen < minBarLen {
			barLen = minBarLen
		}

		dc.SetColor(region.fill)
		dc.DrawRectangle(x, y, barLen, rowHeight)
		dc.Fill()

		dc.SetRGB(0.2, 0.2, 0.2)
		dc.SetLineWidth(1)
		dc.DrawRectangle(float64(margin+labelWidth), y, barSpace, rowHeight)
		dc.Stroke()
	}

	return dc, nil
}

func runTool() error {
	width := flag.Int("width", 1200, "the width of the generated image in pixels")
	output := flag.String("out", "-", "a file to write the generated PNG or - to output to STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "vmlayout: render the kernel virtual address space layout as a PNG image\n\n")
		fmt.Fprint(os.Stderr, "Usage: vmlayout [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	regions := kernelLayout()
	if err := validateLayout(regions); err != nil {
		return err
	}

	dc, err := renderLayout(regions, *width)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "-" {
		fOut, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer fOut.Close()
		w = fOut
	}

	return dc.EncodePNG(w)
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
