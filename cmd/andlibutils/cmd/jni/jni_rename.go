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
package jni

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/andlibutils/andlibutils/internal/colors"
	mcmd "github.com/andlibutils/andlibutils/internal/commands/jni"
	"github.com/andlibutils/andlibutils/internal/config"
	"github.com/andlibutils/andlibutils/internal/magic"
	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	JniCmd.AddCommand(jniRenameCmd)
	jniRenameCmd.Flags().StringP("output", "o", "", "Output file (default is to patch the input in place)")
	jniRenameCmd.MarkFlagFilename("output")
	viper.BindPFlag("jni.rename.output", jniRenameCmd.Flags().Lookup("output"))
}

// jniRenameCmd represents the rename command
var jniRenameCmd = &cobra.Command{
	Use:     "rename <LIB> <SIGNATURE> <NEW_NAME>",
	Aliases: []string{"renameJNI"},
	Short:   "Rename a JNI native method in a shared library",
	Long: heredoc.Doc(`
		Points the name of a RegisterNatives entry at another string that already
		exists in the library's string section. The file layout is not changed and
		no new strings are added, so NEW_NAME must already be present.`),
	Example: heredoc.Doc(`
		# Rename native_drawText(I[CIIFFI)V to drawText in place
		❯ andlibutils jni rename libandroid_runtime.so 'native_drawText(I[CIIFFI)V' drawText

		# Write the patched library somewhere else
		❯ andlibutils jni rename -o out/libandroid_runtime.so libandroid_runtime.so 'native_drawText(I[CIIFFI)V' drawText`),
	Args:          cobra.MinimumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		// flags
		output := viper.GetString("jni.rename.output")

		if len(args) > 3 {
			log.Warnf("too many parameters, ignoring: %s", strings.Join(args[3:], " "))
		}

		libPath := filepath.Clean(args[0])
		signature := args[1]
		newName := args[2]

		if !strings.Contains(signature, "(") {
			return fmt.Errorf("%w: %q must look like name(args)ret", mcmd.ErrInvalidSignature, signature)
		}

		fs := afero.NewOsFs()

		info, err := fs.Stat(libPath)
		if os.IsNotExist(err) {
			return fmt.Errorf("file %s does not exist", libPath)
		} else if err != nil {
			return err
		} else if info.IsDir() {
			return fmt.Errorf("%s is a directory", libPath)
		}
		if ok, err := magic.IsELF(fs, libPath); !ok {
			return err
		}

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		log.WithField("size", humanize.Bytes(uint64(info.Size()))).Infof("processing file %s...", libPath)

		res, err := mcmd.Run(fs, &mcmd.Config{
			Input:     libPath,
			Signature: signature,
			NewName:   newName,
			Output:    output,
			Rename:    &conf.Rename,
		})
		if err != nil {
			return err
		}

		if len(output) == 0 {
			output = libPath
		}
		log.Infof("Result written to %s", colors.Path().Sprint(output))
		for _, m := range res.Matches {
			log.WithFields(log.Fields{
				"old": colors.Addr().Sprintf("%#08x", m.Old),
				"new": colors.Addr().Sprintf("%#08x", m.New),
			}).Debugf("patched %s @ %s", signature, colors.Addr().Sprintf("%#08x", m.Addr))
		}
		return nil
	},
}
