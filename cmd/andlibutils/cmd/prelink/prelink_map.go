/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package prelink

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/andlibutils/andlibutils/internal/colors"
	"github.com/andlibutils/andlibutils/internal/config"
	"github.com/andlibutils/andlibutils/pkg/prelink"
	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

func init() {
	PrelinkCmd.AddCommand(prelinkMapCmd)
	prelinkMapCmd.Flags().StringP("output", "o", "", "Write the map to a file instead of stdout")
	prelinkMapCmd.Flags().IntP("jobs", "j", 0, "Number of files to inspect in parallel")
	prelinkMapCmd.Flags().BoolP("progress", "p", false, "Show a progress bar")
	prelinkMapCmd.MarkFlagFilename("output")
	viper.BindPFlag("prelink.map.output", prelinkMapCmd.Flags().Lookup("output"))
	viper.BindPFlag("prelink.jobs", prelinkMapCmd.Flags().Lookup("jobs"))
	viper.BindPFlag("prelink.map.progress", prelinkMapCmd.Flags().Lookup("progress"))
}

func writeMap(w io.Writer, entries []prelink.Entry, colored bool) {
	paint := func(c *color.Color, format string, a ...any) string {
		if !colored {
			return fmt.Sprintf(format, a...)
		}
		return c.Sprintf(format, a...)
	}
	for _, e := range entries {
		if e.Err != nil {
			continue
		}
		if e.Prelinked {
			fmt.Fprintf(w, "%s %s: %s\n",
				paint(colors.Good(), "prelinked @"),
				paint(colors.Addr(), "0x%08X", e.Addr),
				paint(colors.Path(), "%s", e.Path))
		} else {
			fmt.Fprintf(w, "%s          %s\n", paint(colors.Warn(), "not prelinked:"), paint(colors.Path(), "%s", e.Path))
		}
	}
}

// prelinkMapCmd represents the map command
var prelinkMapCmd = &cobra.Command{
	Use:   "map <LIB>...",
	Short: "List the prelink address of libraries",
	Example: heredoc.Doc(`
		# Show the memory map of a ROM's prelinked libraries
		❯ andlibutils prelink map system/lib/*.so

		# Save it to a file
		❯ andlibutils prelink map -o prelink.map system/lib/*.so`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		// flags
		output := viper.GetString("prelink.map.output")

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		colored := colors.Enabled()
		if len(output) > 0 {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file %s: %v", output, err)
			}
			defer f.Close()
			out = f
			colored = false
		}

		files := lo.Uniq(args)

		var p *mpb.Progress
		var bar *mpb.Bar
		var onFile func(prelink.Entry)
		if viper.GetBool("prelink.map.progress") {
			p = mpb.New(mpb.WithWidth(80), mpb.WithOutput(os.Stderr))
			name := "      "
			bar = p.New(int64(len(files)),
				mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|"),
				mpb.PrependDecorators(
					decor.Name(name, decor.WC{W: len(name), C: decor.DindentRight | decor.DextraSpace}),
					decor.OnComplete(
						decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "✅ ",
					),
				),
				mpb.AppendDecorators(
					decor.CountersNoUnit("%d/%d"),
					decor.Name(" ] "),
				),
			)
			onFile = func(prelink.Entry) { bar.Increment() }
		}

		var entries []prelink.Entry
		var mapErr error
		if err := ctrlc.Default.Run(cmd.Context(), func() error {
			entries, mapErr = prelink.MapFunc(afero.NewOsFs(), files, conf.Prelink.Jobs, onFile)
			if p != nil {
				p.Wait()
			}
			return nil
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Exiting...")
				return nil
			}
			return err
		}

		failed := 0
		for _, e := range entries {
			if e.Err != nil {
				log.WithError(e.Err).Errorf("failed to process %s", colors.Fail().Sprint(e.Path))
				failed++
			}
		}

		writeMap(out, entries, colored)

		if failed > 0 {
			fmt.Printf("Processed %d files (%d errors).\n", len(entries), failed)
			return mapErr
		}
		fmt.Printf("Processed %d files.\n", len(entries))
		return nil
	},
}
