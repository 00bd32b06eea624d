package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sunbk201/tilespoof/internal/mitm"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage the MitM root CA",
}

var certGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new CA and print it as base64-encoded PKCS#12",
	RunE:  runCertGenerate,
}

var certExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the CA certificate in PEM format for the browser trust store",
	Long:  "Print the CA certificate in PEM format. The CA is read from --p12-base64 when given, otherwise from the bundle the proxy stores on first start (created if missing).",
	RunE:  runCertExport,
}

var (
	certPassphrase string
	certP12Base64  string
	certOutputFile string
)

func init() {
	certGenerateCmd.Flags().StringVar(&certPassphrase, "passphrase", "", "Passphrase for the PKCS#12 bundle")
	certGenerateCmd.Flags().StringVar(&certOutputFile, "output", "", "Optional output file path for the PEM certificate")

	certExportCmd.Flags().StringVar(&certP12Base64, "p12-base64", "", "Base64-encoded PKCS#12 data")
	certExportCmd.Flags().StringVar(&certPassphrase, "passphrase", "", "Passphrase for the PKCS#12 bundle")
	certExportCmd.Flags().StringVar(&certOutputFile, "output", "", "Optional output file path for the PEM certificate")

	certCmd.AddCommand(certGenerateCmd)
	certCmd.AddCommand(certExportCmd)
	rootCmd.AddCommand(certCmd)
}

func runCertGenerate(cmd *cobra.Command, args []string) error {
	ca, err := mitm.GenerateCA()
	if err != nil {
		return fmt.Errorf("failed to generate CA: %w", err)
	}

	p12Base64, err := ca.EncodeP12(certPassphrase)
	if err != nil {
		return fmt.Errorf("failed to encode CA as PKCS#12: %w", err)
	}
	fmt.Println(p12Base64)

	if certOutputFile != "" {
		return writePEM(ca)
	}
	return nil
}

func runCertExport(cmd *cobra.Command, args []string) error {
	if certP12Base64 == "" {
		certP12Base64 = viper.GetString("mitm.p12")
	}
	if certPassphrase == "" {
		certPassphrase = viper.GetString("mitm.passphrase")
	}
	ca, err := mitm.LoadOrCreateCA(certP12Base64, certPassphrase, caFilePath())
	if err != nil {
		return fmt.Errorf("failed to load CA: %w", err)
	}
	if certOutputFile != "" {
		return writePEM(ca)
	}
	fmt.Print(string(ca.CertPEM()))
	return nil
}

func writePEM(ca *mitm.CA) error {
	if err := os.WriteFile(certOutputFile, ca.CertPEM(), 0644); err != nil {
		return fmt.Errorf("failed to write PEM file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "PEM certificate written to %s\n", certOutputFile)
	return nil
}
