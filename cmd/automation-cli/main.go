// Package main provides a CLI for interacting with the automation server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipeboard/automation/pkg/graph"
)

var (
	// Global flags
	serverURL string
	tenant    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "automation-cli",
		Short: "Automation CLI",
		Long:  "Command-line interface for interacting with the automation server",
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "", "Tenant ID")

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a workflow graph file locally",
		Args:  cobra.ExactArgs(1),
		Run:   validateGraph,
	}

	// Workflow commands
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Workflow management",
	}

	workflowListCmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Run:   listWorkflows,
	}

	workflowCreateCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new draft workflow",
		Args:  cobra.ExactArgs(1),
		Run:   createWorkflow,
	}

	workflowGetCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Get a workflow",
		Args:  cobra.ExactArgs(1),
		Run:   getWorkflow,
	}

	workflowActivateCmd := &cobra.Command{
		Use:   "activate [id]",
		Short: "Activate a workflow",
		Args:  cobra.ExactArgs(1),
		Run:   setStatus("active"),
	}

	workflowPauseCmd := &cobra.Command{
		Use:   "pause [id]",
		Short: "Pause a workflow",
		Args:  cobra.ExactArgs(1),
		Run:   setStatus("paused"),
	}

	workflowCmd.AddCommand(workflowListCmd, workflowCreateCmd, workflowGetCmd,
		workflowActivateCmd, workflowPauseCmd)

	// Run commands
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Run history",
	}

	runsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Run:   listRuns,
	}
	runsListCmd.Flags().String("workflow", "", "Filter by workflow id")

	runsGetCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Get a run with its step history",
		Args:  cobra.ExactArgs(1),
		Run:   getRun,
	}

	runsCancelCmd := &cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		Run:   cancelRun,
	}

	runsCmd.AddCommand(runsListCmd, runsGetCmd, runsCancelCmd)

	triggerCmd := &cobra.Command{
		Use:   "trigger [file]",
		Short: "Deliver a test event from a JSON file",
		Args:  cobra.ExactArgs(1),
		Run:   deliverEvent,
	}

	rootCmd.AddCommand(validateCmd, workflowCmd, runsCmd, triggerCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// validateGraph validates a graph file without talking to the server
func validateGraph(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	g, err := graph.Parse(data)
	if err != nil {
		fmt.Printf("Error: invalid graph JSON: %v\n", err)
		os.Exit(1)
	}

	valid, errs := graph.Validate(g)
	if len(errs) > 0 {
		fmt.Printf("Graph is invalid (%d problems):\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  - %s\n", e.Error())
		}
		os.Exit(1)
	}

	fmt.Printf("Graph is valid: %d nodes, %d connections, trigger %s\n",
		len(g.Nodes), len(g.Connections), valid.Trigger.ID)
	for _, warning := range valid.Warnings {
		fmt.Printf("  warning: %s\n", warning.Error())
	}
}

func listWorkflows(cmd *cobra.Command, args []string) {
	printResponse(doRequest(http.MethodGet, "/api/v1/workflows", nil))
}

func createWorkflow(cmd *cobra.Command, args []string) {
	body, _ := json.Marshal(map[string]string{"name": args[0]})
	printResponse(doRequest(http.MethodPost, "/api/v1/workflows", body))
}

func getWorkflow(cmd *cobra.Command, args []string) {
	printResponse(doRequest(http.MethodGet, "/api/v1/workflows/"+args[0], nil))
}

func setStatus(status string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		body, _ := json.Marshal(map[string]string{"status": status})
		printResponse(doRequest(http.MethodPost, "/api/v1/workflows/"+args[0]+"/status", body))
	}
}

func listRuns(cmd *cobra.Command, args []string) {
	path := "/api/v1/runs"
	if workflowID, _ := cmd.Flags().GetString("workflow"); workflowID != "" {
		path += "?workflow_id=" + workflowID
	}
	printResponse(doRequest(http.MethodGet, path, nil))
}

func getRun(cmd *cobra.Command, args []string) {
	printResponse(doRequest(http.MethodGet, "/api/v1/runs/"+args[0], nil))
}

func cancelRun(cmd *cobra.Command, args []string) {
	printResponse(doRequest(http.MethodPost, "/api/v1/runs/"+args[0]+"/cancel", nil))
}

// deliverEvent posts an event file to the ingestion endpoint
func deliverEvent(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printResponse(doRequest(http.MethodPost, "/api/v1/events", data))
}

// doRequest sends a tenant-scoped request and returns status and body
func doRequest(method, path string, body []byte) (int, []byte) {
	if tenant == "" {
		fmt.Println("Error: --tenant is required")
		os.Exit(1)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-Tenant-ID", tenant)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return resp.StatusCode, respBody
}

func printResponse(status int, body []byte) {
	if status >= 400 {
		fmt.Printf("Error (%d): %s\n", status, string(body))
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}
