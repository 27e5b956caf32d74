/*
To replace a file in a robust way we should:

- write the new content to a temporary file in the same directory

- handle errors returned by `Write()`, `Sync()` and `Close()`

- remove the temporary file if anything failed

- rename the temporary file over the destination and sync the directory

Package atomicfile makes it easy to get this logic right.

Writing a new file from scratch:

	func writeToFileAtomically(filePath string, data []byte) error {
		w, err := atomicfile.New(filePath)
		if err != nil {
			return err
		}
		// cleans up if we return before Close()
		defer w.RemoveIfNotCommitted()

		_, err = w.Write(data)
		if err != nil {
			return err
		}
		return w.Close()
	}

Building a replacement that stays open after the swap (this is how
nstore compacts its log):

	f, err := atomicfile.NewWithName(dbPath, ".db.tmp")
	...
	defer f.RemoveIfNotCommitted()
	// read and write f.File() at any offset
	err = f.Commit()
	// f.File() is now the file at dbPath

To learn more see https://presstige.io/p/atomicfile-22143bf788b542fda2262ca7aee57ae4
*/
package atomicfile
