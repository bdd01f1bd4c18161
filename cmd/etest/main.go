package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// TargetResult is what one compile-and-run of a source file produced.
// AsmHash pins the generated assembly so codegen drift is caught even when
// the program's behaviour is unchanged. A golden without a hash pins only
// the program's behaviour.
type TargetResult struct {
	AsmHash string    `json:"asm_hash"`
	Compile Execution `json:"compile"`
	Run     Execution `json:"run"`
}

type FileTestResult struct {
	File    string        `json:"file"`
	Status  string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string        `json:"message,omitempty"`
	Diff    string        `json:"diff,omitempty"`
	Golden  *TargetResult `json:"golden,omitempty"`
	Target  *TargetResult `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	targetCompiler = flag.String("target-compiler", "./ezc", "Path to the compiler to test.")
	targetArgs     = flag.String("target-args", "", "Extra arguments for the compiler (space-separated).")
	generateGolden = flag.String("generate-golden", "", "Generate golden .json files for the given glob pattern(s).")
	testFiles      = flag.String("test-files", "examples/*.ez", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each command execution.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	runtimeAsm     = flag.String("runtime", "runtime/ezrt.asm", "Assembly runtime linked into every test binary (empty to disable).")
	assembler      = flag.String("as", "nasm", "Assembler used to build the runtime.")
)

// runtimeObj is the assembled runtime, or empty when none is linked.
var runtimeObj string

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "etest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if runtimeObj, err = buildRuntime(tempDir); err != nil {
		os.RemoveAll(tempDir)
		log.Fatalf("%s[ERROR]%s Failed to assemble runtime %s: %v\n", cRed, cNone, *runtimeAsm, err)
	}

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden, tempDir)
		return
	}
	if !handleRunTestSuite(tempDir) {
		os.RemoveAll(tempDir)
		os.Exit(1)
	}
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

// buildRuntime assembles the runtime once so every test binary can link it.
func buildRuntime(tempDir string) (string, error) {
	if *runtimeAsm == "" {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	obj := filepath.Join(tempDir, "ezrt.o")
	res := executeCommand(ctx, *assembler, "-felf64", "-o", obj, *runtimeAsm)
	if res.ExitCode != 0 || res.TimedOut {
		return "", fmt.Errorf("exit code %d\n%s", res.ExitCode, res.Stderr)
	}
	return obj, nil
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(patterns, tempDir string) {
	files, err := expandGlobPatterns(patterns)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}

	for _, sourceFile := range files {
		log.Printf("Generating golden file for %s...\n", sourceFile)
		fileHash, err := hashFile(sourceFile)
		if err != nil {
			log.Fatalf("%s[ERROR]%s Could not hash source file %s: %v\n", cRed, cNone, sourceFile, err)
		}
		result, err := compileAndRun(sourceFile, tempDir, fileHash)
		if err != nil {
			log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n%s", cRed, cNone, sourceFile, err, result.Compile.Stderr)
		}
		jsonData, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
		}
		goldenFileName := getJSONPath(sourceFile)
		if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
		}
		log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
	}
}

// handleRunTestSuite reports whether every file passed or was skipped.
func handleRunTestSuite(tempDir string) bool {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return true
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, tempDir, t.hash)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- task{file, fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	return !hasFailures(writeJSONReport(allResults))
}

func testFile(file, tempDir, fileHash string) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if errors.Is(err, os.ErrNotExist) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden TargetResult
	if err := json.Unmarshal(goldenData, &golden); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	target, err := compileAndRun(file, tempDir, fileHash)
	if err != nil {
		return &FileTestResult{
			File:    file,
			Status:  "FAIL",
			Message: "Compiler failed, but golden file expected success.",
			Diff:    fmt.Sprintf("Compiler STDERR:\n%s", target.Compile.Stderr),
			Golden:  &golden,
			Target:  target,
		}
	}
	return compareResults(file, &golden, target)
}

func compareResults(file string, golden, target *TargetResult) *FileTestResult {
	var diffs strings.Builder
	if golden.AsmHash != "" && golden.AsmHash != target.AsmHash {
		fmt.Fprintf(&diffs, "Assembly hash mismatch:\n  - Golden: %s\n  - Target: %s\n", golden.AsmHash, target.AsmHash)
	}
	if golden.Run.ExitCode != target.Run.ExitCode {
		fmt.Fprintf(&diffs, "Exit code mismatch:\n  - Golden: %d\n  - Target: %d\n", golden.Run.ExitCode, target.Run.ExitCode)
	}
	if golden.Run.TimedOut != target.Run.TimedOut {
		fmt.Fprintf(&diffs, "Timeout mismatch:\n  - Golden: %v\n  - Target: %v\n", golden.Run.TimedOut, target.Run.TimedOut)
	}
	if d := cmp.Diff(golden.Run.Stdout, target.Run.Stdout); d != "" {
		fmt.Fprintf(&diffs, "STDOUT mismatch:\n%s", d)
	}
	if d := cmp.Diff(golden.Run.Stderr, target.Run.Stderr); d != "" {
		fmt.Fprintf(&diffs, "STDERR mismatch:\n%s", d)
	}

	if diffs.Len() > 0 {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Assembly, output or exit code mismatch", Diff: diffs.String(), Golden: golden, Target: target}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "Matches golden file", Golden: golden, Target: target}
}

// executeCommand runs a command under ctx and captures its output
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(startTime)}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err != nil:
		result.ExitCode = -2
		result.Stderr += "\nExecution error: " + err.Error()
	}
	return result
}

func compileAndRun(sourceFile, tempDir, fileHash string) (*TargetResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	binaryPath := filepath.Join(tempDir, fileHash)
	asmPath := binaryPath + ".asm"
	extra := strings.Fields(*targetArgs)

	asmArgs := append([]string{"-S", "-o", asmPath}, extra...)
	asmResult := executeCommand(ctx, *targetCompiler, append(asmArgs, sourceFile)...)
	if asmResult.ExitCode != 0 || asmResult.TimedOut {
		return &TargetResult{Compile: asmResult}, fmt.Errorf("assembly generation failed with exit code %d", asmResult.ExitCode)
	}
	asmHash, err := hashFile(asmPath)
	if err != nil {
		return &TargetResult{Compile: asmResult}, err
	}

	binArgs := append([]string{"-o", binaryPath}, extra...)
	if runtimeObj != "" {
		binArgs = append(binArgs, "-stdlib-path", runtimeObj)
	}
	compileResult := executeCommand(ctx, *targetCompiler, append(binArgs, sourceFile)...)
	if compileResult.ExitCode != 0 || compileResult.TimedOut {
		return &TargetResult{AsmHash: asmHash, Compile: compileResult}, fmt.Errorf("compilation failed with exit code %d", compileResult.ExitCode)
	}
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		return &TargetResult{AsmHash: asmHash, Compile: compileResult}, fmt.Errorf("compilation succeeded but binary was not created at %s", binaryPath)
	}

	runCtx, runCancel := context.WithTimeout(context.Background(), *timeout)
	defer runCancel()
	runResult := executeCommand(runCtx, binaryPath)

	// Durations vary between machines; keep them out of golden files.
	compileResult.Duration, runResult.Duration = 0, 0
	return &TargetResult{AsmHash: asmHash, Compile: compileResult, Run: runResult}, nil
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue // Skip files we can't resolve
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
