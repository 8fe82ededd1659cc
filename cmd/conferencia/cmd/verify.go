package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-conferencia/internal/signature"
)

var verifyKey string

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Inspect NFe XML signatures",
	Long: `Inspect the XMLDSig signature of NFe XML files.

Checks performed:
  - Signature reference points at the infNFe Id (and at --key when given)
  - Digest of the canonicalized infNFe
  - RSA signature value over SignedInfo
  - Certificate validity period, and chain when --trust-file is set

Examples:
  conferencia verify nota.xml
  conferencia verify notas/ --trust-file icp-brasil.pem -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	addTrustFlags(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyKey, "key", "", "Access key the signature must reference")
}

// VerifyResult holds the result of verifying a single file
type VerifyResult struct {
	File string `json:"file"`
	*signature.VerificationResult
	Error string `json:"error,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to verify")
	}

	verifier, err := newVerifier()
	if err != nil {
		return fmt.Errorf("load trust store: %w", err)
	}

	results := make([]VerifyResult, 0, len(files))
	allValid := true
	for _, file := range files {
		printVerbose("Verifying: %s\n", file)
		r := verifyFile(verifier, file)
		if r.Error != "" || r.VerificationResult == nil || !r.Valid {
			allValid = false
		}
		results = append(results, r)
	}

	switch outputFormat {
	case "json":
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	case "table":
		printVerifyResults(results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}

	if !allValid {
		return fmt.Errorf("verification failed for some files")
	}
	return nil
}

func verifyFile(v *signature.Verifier, path string) VerifyResult {
	result := VerifyResult{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}
	vr, err := v.Verify(data, verifyKey)
	result.VerificationResult = vr
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func printVerifyResults(results []VerifyResult) {
	for _, r := range results {
		fmt.Printf("%s\n", r.File)
		if r.Error != "" {
			fmt.Printf("  ✗ %s\n", r.Error)
		}
		vr := r.VerificationResult
		if vr == nil {
			continue
		}
		fmt.Printf("  Valid:        %s\n", mark(vr.Valid))
		fmt.Printf("  Reference:    %s %s\n", mark(vr.ReferenceMatchesKey), vr.Reference)
		fmt.Printf("  Digest:       %s\n", mark(vr.DigestValid))
		fmt.Printf("  Signature:    %s\n", mark(vr.SignatureValid))
		fmt.Printf("  Certificate:  %s\n", mark(vr.CertValid))
		if vr.CertChainValid {
			fmt.Printf("  Chain:        %s\n", mark(vr.CertChainValid))
		}
		if vr.NotRevoked {
			fmt.Printf("  Not revoked:  %s\n", mark(vr.NotRevoked))
		}
		if vr.Signer != nil {
			fmt.Printf("  Signer:       %s (CNPJ %s)\n", vr.Signer.Name, vr.Signer.TaxID)
			fmt.Printf("  Issuer:       %s\n", vr.Signer.Issuer)
			fmt.Printf("  Valid until:  %s\n", vr.Signer.ValidTo.Format("02/01/2006"))
		}
		for _, e := range vr.Errors {
			fmt.Printf("  ✗ %s\n", e)
		}
		for _, w := range vr.Warnings {
			fmt.Printf("  ⚠ %s\n", w)
		}
	}
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
