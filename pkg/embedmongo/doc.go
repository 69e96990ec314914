// Package embedmongo starts a throwaway MongoDB server and hands back a
// connected client.
//
//	inst, err := embedmongo.NewBuilder().
//		VersionString("4.2.0").
//		BindIP("127.0.0.1").
//		Port(27017).
//		Build(ctx)
//	if err != nil {
//		return err
//	}
//	defer inst.Close(ctx)
//	coll := inst.Client().Database("test").Collection("things")
//
// Setters validate eagerly; the first invalid value is kept and returned by
// Build before anything is launched. Unknown version strings are not an
// error: they are logged and passed through for a best-effort download.
package embedmongo
