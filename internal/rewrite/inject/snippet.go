package inject

import (
	"fmt"
	"strings"
)

const (
	tempFileVar = "__whlobf_temp_file"
	pathFunc    = "__whlobf_encrypted_source_path"
)

// sourceWriterFunc renders the C++ function that materializes the encrypted
// source under <temp>/<dirName>/<hash>.py once per process and returns its
// path. An existing file is never rewritten, so repeated imports and restarts
// sharing a temp directory reuse it.
func sourceWriterFunc(dirName, hash string, lines []EncryptedLine) string {
	var elems strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&elems, "        \"%s\",\n", line.Token)
	}
	return fmt.Sprintf(`static std::filesystem::path %[1]s() {
    static bool initialized = false;
    static std::filesystem::path temp_file;
    if (initialized) {
        return temp_file;
    }
    initialized = true;

    std::error_code ec;
    auto temp_dir = std::filesystem::temp_directory_path(ec);
    if (ec) {
        return temp_file;
    }
    auto whlobf_dir = temp_dir / "%[2]s";
    temp_file = whlobf_dir / "%[3]s.py";
    if (std::filesystem::exists(temp_file, ec)) {
        return temp_file;
    }
    std::filesystem::create_directories(whlobf_dir, ec);
    if (ec) {
        return temp_file;
    }

    static const char *const encrypted_source[] = {
%[4]s    };
    auto partial_file = temp_file;
    partial_file += ".partial";
    {
        std::ofstream fout(partial_file, std::ios::binary | std::ios::trunc);
        const size_t count = sizeof(encrypted_source) / sizeof(encrypted_source[0]);
        for (size_t i = 0; i < count; i++) {
            if (i > 0) {
                fout << '\n';
            }
            fout << encrypted_source[i];
        }
    }
    std::filesystem::rename(partial_file, temp_file, ec);
    return temp_file;
}
`, pathFunc, dirName, hash, elems.String())
}

// markErrPosHook is spliced into the __PYX_MARK_ERR_POS macro body, so it
// must stay on one line.
func markErrPosHook() string {
	return fmt.Sprintf(
		" { std::error_code __whlobf_ec; auto __whlobf_path = %[1]s(); if (std::filesystem::exists(__whlobf_path, __whlobf_ec)) { %[2]s = __whlobf_path.string(); __pyx_filename = %[2]s.c_str(); } } ",
		pathFunc, tempFileVar,
	)
}

var includes = []string{
	"#include <string>",
	"#include <filesystem>",
	"#include <fstream>",
}
