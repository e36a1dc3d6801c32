package reconcile

import "dispatch-dashboard/internal/records"

// Accepted spellings per logical field, highest precedence first. The backend
// has shipped every one of these at some point; extend the lists rather than
// adding special cases to the resolver.
var (
	HospitalIDField = records.Field{Name: "hospital.id", Aliases: []string{
		"id", "_id", "medInstitutionId", "medOrgId", "uuid", "code",
	}}
	HospitalNameField = records.Field{Name: "hospital.name", Aliases: []string{
		"name", "title", "medInstitutionName", "fullName", "shortName",
	}}

	CarIDField = records.Field{Name: "car.id", Aliases: []string{
		"id", "_id", "carId", "uuid",
	}}
	CarNumberField = records.Field{Name: "car.carId", Aliases: []string{
		"carId", "id", "_id",
	}}
	RegNumField = records.Field{Name: "car.regNum", Aliases: []string{
		"regNum", "regNumber", "registrationNumber", "plateNumber", "number",
	}}
	TrackerField = records.Field{Name: "car.gpsTracker", Aliases: []string{
		"gpsTracker", "gpsNumber", "trackerId", "tracker", "imei", "gpsTracker.id",
	}}

	UserIDField = records.Field{Name: "user.id", Aliases: []string{
		"id", "_id", "userId", "uuid",
	}}
	UserNumberField = records.Field{Name: "user.userId", Aliases: []string{
		"userId", "id", "_id",
	}}
	LoginField = records.Field{Name: "user.login", Aliases: []string{
		"login", "username", "userName", "email",
	}}
	RoleField = records.Field{Name: "user.role", Aliases: []string{
		"role", "roleId", "roleCode",
	}}
	RemovedField = records.Field{Name: "user.isRemoved", Aliases: []string{
		"isRemoved", "removed", "isDeleted", "deleted",
	}}

	// Hospital references carried by cars and users.
	MemberHospitalIDField = records.Field{Name: "member.hospitalId", Aliases: []string{
		"hospitalId", "medInstitutionId", "medOrgId", "orgId", "organizationId",
		"medInstitution.id", "hospital.id",
	}}
	MemberHospitalNameField = records.Field{Name: "member.hospitalName", Aliases: []string{
		"hospitalName", "hospital", "medInstitutionName", "medOrgName", "organizationName",
		"medInstitution.name", "hospital.name",
	}}

	PositionField = records.Field{Name: "position", Aliases: []string{
		"position", "coords", "coordinates", "location",
	}}
	LatField = records.Field{Name: "lat", Aliases: []string{
		"lat", "latitude", "location.lat", "location.latitude",
	}}
	LngField = records.Field{Name: "lng", Aliases: []string{
		"lng", "lon", "longitude", "location.lng", "location.lon", "location.longitude",
	}}
)
