package migrations

var SplitStatements = splitStatements
