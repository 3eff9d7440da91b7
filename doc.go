// Package postrun exposes a Go API for running Postman v2.1 collections
// in-process, plus the OpenAPI/WSDL importers that generate them.
//
// Quick start:
//
//	ctx := context.Background()
//	eng, _ := postrun.New(ctx)
//	sum, _ := eng.Run(ctx, postrun.RunOptions{
//		CollectionPath:  "collection.json",
//		EnvironmentPath: "env.json",
//	})
//	if !sum.Passed() {
//		for _, f := range sum.Failures {
//			fmt.Println(f.Error.Name, f.Error.Message)
//		}
//	}
//
// Data-driven runs execute one iteration per dataset row:
//
//	sum, _ := eng.Run(ctx, postrun.RunOptions{
//		CollectionPath:    "collection.json",
//		IterationDataPath: "users.csv", // or .json / .yaml
//		Reporters:         []string{"json", "junit"},
//		ReporterOptions: map[string]postrun.ReporterOptions{
//			"json":  {Export: "out/report.json"},
//			"junit": {Export: "out/report.xml"},
//		},
//	})
//
// Hooks:
//
//	eng, _ := postrun.New(ctx,
//		postrun.WithPreRequestHook(func(ctx context.Context, info postrun.HookInfo, req *http.Request, log pslog.Base) error {
//			req.Header.Set("X-Signature", sign(req))
//			return nil
//		}),
//		postrun.WithPostRequestHook(func(ctx context.Context, info postrun.HookInfo, ex postrun.Execution, log pslog.Base) error {
//			if ex.Failed() {
//				log.Warn("request failed", "item", info.Name, "err", ex.ErrorText)
//			}
//			return nil
//		}),
//	)
//
// Transport knobs mirror the CLI:
//
//	custom := &http.Client{Timeout: 5 * time.Second}
//	eng, _ := postrun.New(ctx, postrun.WithHTTPClient(custom), postrun.WithTimeout(10*time.Second))
//
// Import an OpenAPI document and run the generated tests:
//
//	_, _ = postrun.ImportOpenAPI(ctx, postrun.ImportOptions{
//		Source:          "openapi.yaml",
//		OutputFile:      "api.postman_collection.json",
//		EnvironmentFile: "api.postman_environment.json",
//	})
package postrun
